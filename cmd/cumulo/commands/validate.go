package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cumulo-io/cumulo/pkg/engine"
	"github.com/cumulo-io/cumulo/pkg/template"
)

func newValidateCommand() *cobra.Command {
	var (
		templateFile string
		dotOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a stack template",
		Long: `Parse a stack template, check every resource type against the registry,
and build the dependency graph including handler-contributed implicit
edges. Cycles and unknown references are reported without touching any
provider state.`,
		Example: `  # Validate a template and print the creation order
  cumulo validate -f stack.yaml

  # Emit the dependency graph in DOT format
  cumulo validate -f stack.yaml --dot | dot -Tsvg > graph.svg`,
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
			graph, err := env.engine.Validate(stack)
			if err != nil {
				return err
			}

			if dotOutput {
				fmt.Print(graph.ToDOT())
				return nil
			}

			waves, err := graph.Waves(engine.DirectionForward)
			if err != nil {
				return err
			}
			fmt.Printf("Stack %s is valid: %d resources\n", def.Name, graph.Len())
			for i, wave := range waves {
				fmt.Printf("  wave %d: %s\n", i+1, strings.Join(wave, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateFile, "file", "f", "", "stack template file")
	cmd.Flags().BoolVar(&dotOutput, "dot", false, "print the dependency graph in DOT format")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
