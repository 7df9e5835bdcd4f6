package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cumulo-io/cumulo/pkg/engine"
)

// runAction loads a stack and runs one uniform lifecycle action on it.
func runAction(cmd *cobra.Command, name string, run func(context.Context, *engine.Engine, *engine.Stack) error) error {
	ctx := cmd.Context()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	stack, err := env.loadStack(ctx, name)
	if err != nil {
		return err
	}
	if err := run(ctx, env.engine, stack); err != nil {
		return fmt.Errorf("stack %s: %w", stack.Name, err)
	}
	fmt.Printf("Stack %s: %s\n", stack.Name, stack.State())
	return nil
}

func newSuspendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suspend STACK",
		Short: "Suspend a stack",
		Long: `Pause every resource of a stack, dependents before their dependencies.
Hook signals are rejected while the stack is suspended. Resource types
without a suspend operation complete as no-ops.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], func(ctx context.Context, e *engine.Engine, s *engine.Stack) error {
				return e.Suspend(ctx, s)
			})
		},
	}
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume STACK",
		Short: "Resume a suspended stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], func(ctx context.Context, e *engine.Engine, s *engine.Stack) error {
				return e.Resume(ctx, s)
			})
		},
	}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check STACK",
		Short: "Check every resource of a stack against the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], func(ctx context.Context, e *engine.Engine, s *engine.Stack) error {
				return e.Check(ctx, s)
			})
		},
	}
}

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot STACK",
		Short: "Snapshot every resource of a stack that supports it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], func(ctx context.Context, e *engine.Engine, s *engine.Stack) error {
				return e.Snapshot(ctx, s)
			})
		},
	}
}
