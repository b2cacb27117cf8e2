package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	setTTL   time.Duration
	setFlags string
)

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a key unconditionally, optionally with a ttl and flags",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer closeInstance(ctx, inst)

		key, value := args[0], args[1]

		if setFlags != "" {
			cas, err := inst.SetWithFlags(ctx, key, []byte(value), []byte(setFlags), setTTL)
			if err != nil {
				return err
			}
			_, _ = okC.Printf("stored %q, cas=%d\n", key, cas)
			return nil
		}

		if setTTL > 0 {
			if err := inst.SetX(ctx, key, []byte(value), setTTL); err != nil {
				return err
			}
		} else if err := inst.Set(ctx, key, []byte(value)); err != nil {
			return err
		}

		_, _ = okC.Printf("stored %q\n", key)
		return nil
	},
}

func init() {
	setCmd.Flags().DurationVar(&setTTL, "ttl", 0, "expire after this duration (0 = never)")
	setCmd.Flags().StringVar(&setFlags, "flags", "", "opaque flags byte string to store alongside the value")
}
