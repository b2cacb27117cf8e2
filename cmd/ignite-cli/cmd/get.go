package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch a key's value, flags, cas token, and remaining ttl",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer closeInstance(ctx, inst)

		item, err := inst.Get(ctx, args[0])
		if err != nil {
			return err
		}

		_, _ = okC.Printf("value: %s\n", item.Value)
		if len(item.Flags) > 0 {
			stdout.Printf("flags: %s\n", item.Flags)
		}
		stdout.Printf("cas: %d\n", item.CAS)
		stdout.Printf("ttl_remaining: %s\n", item.TTLRemaining)
		return nil
	},
}
