package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cumulo-io/cumulo/pkg/engine"
	"github.com/cumulo-io/cumulo/pkg/template"
)

func newCreateCommand() *cobra.Command {
	var templateFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a stack from a template",
		Long: `Create every resource declared in a stack template, children before
parents per the dependency graph.

If any resource fails, the resources created so far are deleted again in
reverse order, unless the template sets disable_rollback.

While the run is in flight, armed hooks hold their resource before the
provider is called. Clear a hook by writing a "RESOURCE HOOK" line to stdin.`,
		Example: `  # Create a stack
  cumulo create -f stack.yaml

  # Create with debug logging into a separate state database
  cumulo create -f stack.yaml --state /var/lib/cumulo/prod.db --log-level debug`,
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

			stack := engine.NewStack(def.Name, def.Resources, def.DisableRollback)
			go env.signalHooks(ctx, stack, os.Stdin)

			if err := env.engine.Create(ctx, stack); err != nil {
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
