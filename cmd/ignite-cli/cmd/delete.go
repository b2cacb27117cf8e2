package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <key>",
	Aliases: []string{"del", "rm"},
	Short:   "Remove a key's live entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer closeInstance(ctx, inst)

		if err := inst.Delete(ctx, args[0]); err != nil {
			return err
		}
		_, _ = okC.Printf("deleted %q\n", args[0])
		return nil
	},
}
