package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newEventsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events STACK",
		Short: "Show the event timeline of a stack",
		Long: `Print the recorded state transitions of a stack and its resources,
oldest first. Every dispatch, completion, failure, and rollback leg
appears as one event.`,
		Example: `  # Full timeline
  cumulo events mystack

  # Only the first 20 events, as JSON
  cumulo events mystack --limit 20 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx)

			events, err := env.store.ListEvents(ctx, args[0], limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(events)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tRESOURCE\tACTION\tSTATUS\tREASON")
			for _, event := range events {
				resource := event.ResourceName
				if resource == "" {
					resource = "(stack)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					event.Timestamp.Format("15:04:05.000"), resource,
					event.Action, event.Status, event.Reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}
