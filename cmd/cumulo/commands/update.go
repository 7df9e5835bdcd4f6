package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cumulo-io/cumulo/pkg/template"
)

func newUpdateCommand() *cobra.Command {
	var templateFile string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a stack toward a new template",
		Long: `Reconcile an existing stack toward a new template: new resources are
created, changed ones are updated in place or replaced per their type's
update policy, and removed ones are deleted afterwards in reverse order.

A failure rolls the stack back to the previous definitions unless the
template sets disable_rollback. Restricted updates (disable_update,
disable_replace) are refused before any resource is touched.`,
		Example: `  # Update the stack named in the template
  cumulo update -f stack.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			def, err := template.Load(templateFile)
			if err != nil {
				return err
			}

			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx)

			stack, err := env.loadStack(ctx, def.Name)
			if err != nil {
				return err
			}
			stack.DisableRollback = def.DisableRollback
			go env.signalHooks(ctx, stack, os.Stdin)

			if err := env.engine.Update(ctx, stack, def.Resources); err != nil {
				return fmt.Errorf("stack %s: %w", stack.Name, err)
			}
			fmt.Printf("Stack %s: %s\n", stack.Name, stack.State())
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateFile, "file", "f", "", "stack template file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
