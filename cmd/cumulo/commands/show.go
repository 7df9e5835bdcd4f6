package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show STACK",
		Short: "Show a stack and its resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx)

			stack, err := env.store.GetStack(ctx, args[0])
			if err != nil {
				return err
			}
			resources, err := env.store.ListResources(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"stack":     stack,
					"resources": resources,
				})
			}

			fmt.Printf("Stack:   %s\n", stack.Name)
			fmt.Printf("State:   %s/%s\n", stack.Action, stack.Status)
			if stack.StatusReason != "" {
				fmt.Printf("Reason:  %s\n", stack.StatusReason)
			}
			fmt.Printf("Graph:   v%d\n\n", stack.GraphVersion)

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "RESOURCE\tTYPE\tPHYSICAL ID\tACTION\tSTATUS")
			for _, res := range resources {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					res.Name, res.Type, res.PhysicalID, res.Action, res.Status)
			}
			return w.Flush()
		},
	}
}
