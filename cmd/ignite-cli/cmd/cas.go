package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var casTTL time.Duration

var casCmd = &cobra.Command{
	Use:   "cas <key> <value> <expected-cas>",
	Short: "Update a key only if it exists and its cas token matches",
	Args:  cobra.ExactArgs(3),
	RunE: func(c *cobra.Command, args []string) error {
		expected, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return err
		}

		ctx := context.Background()
		inst, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer closeInstance(ctx, inst)

		newCas, err := inst.Cas(ctx, args[0], []byte(args[1]), uint32(expected), casTTL)
		if err != nil {
			return err
		}
		_, _ = okC.Printf("updated %q, cas=%d\n", args[0], newCas)
		return nil
	},
}

func init() {
	casCmd.Flags().DurationVar(&casTTL, "ttl", 0, "expire after this duration (0 = never)")
}
