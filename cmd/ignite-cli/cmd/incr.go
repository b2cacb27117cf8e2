package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

var incrCmd = &cobra.Command{
	Use:   "incr <key> <delta>",
	Short: "Add delta to a numeric item's stored value",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		delta, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return err
		}

		ctx := context.Background()
		inst, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer closeInstance(ctx, inst)

		result, err := inst.Incr(ctx, args[0], delta)
		if err != nil {
			return err
		}
		_, _ = okC.Printf("%q = %d\n", args[0], result)
		return nil
	},
}
