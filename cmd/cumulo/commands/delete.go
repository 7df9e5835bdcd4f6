package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete STACK",
		Short: "Delete a stack",
		Long: `Delete every resource of a stack in reverse dependency order, then drop
the stack from the state store.

Delete never rolls back. Re-running it retries the resources that are
still left; resources the provider no longer knows are treated as
already deleted.`,
		Example: `  # Delete a stack
  cumulo delete mystack`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx)

			stack, err := env.loadStack(ctx, args[0])
			if err != nil {
				return err
			}
			if err := env.engine.Delete(ctx, stack); err != nil {
				return fmt.Errorf("stack %s: %w", stack.Name, err)
			}
			if err := env.store.DeleteStack(ctx, stack.Name); err != nil {
				return err
			}
			fmt.Printf("Stack %s deleted\n", stack.Name)
			return nil
		},
	}

	return cmd
}
