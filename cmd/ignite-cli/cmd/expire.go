package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run the ttl-bucket sweep to completion, reclaiming every expired segment",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer closeInstance(ctx, inst)

		reclaimed, err := inst.Expire(ctx)
		if err != nil {
			return err
		}
		_, _ = okC.Printf("reclaimed %d segment(s)\n", reclaimed)
		return nil
	},
}
