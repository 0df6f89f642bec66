package cmd

import (
	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/cappit/internal/lifecycle"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// NewStartCmd creates the start command
func NewStartCmd(a *App) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "start [NAME]",
		Short: "Start a stopped challenge container",
		Args:  targetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				t, err := selectTarget(cmd.Context(), s, args, index, lifecycle.ListOptions{})
				if err != nil {
					return err
				}
				if err := s.rec.Start(cmd.Context(), t); err != nil {
					return err
				}
				logging.Success("Started %s", t.Name)
				return nil
			})
		},
	}

	indexFlag(cmd, &index)
	return cmd
}

// NewRestartCmd creates the restart command
func NewRestartCmd(a *App) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "restart [NAME]",
		Short: "Re-run the start script of a built challenge",
		Long:  `Runs only the run step for a challenge whose image is already built.`,
		Args:  targetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				t, err := selectTarget(cmd.Context(), s, args, index, lifecycle.ListOptions{})
				if err != nil {
					return err
				}
				if err := s.rec.Restart(cmd.Context(), t); err != nil {
					return err
				}
				logging.Success("Restarted %s", t.Name)
				return nil
			})
		},
	}

	indexFlag(cmd, &index)
	return cmd
}

// NewStopCmd creates the stop command
func NewStopCmd(a *App) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "stop [NAME]",
		Short: "Stop a running challenge",
		Long: `Stops the container. The challenge keeps its port.
--index counts rows of 'cappit list --running'.`,
		Args: targetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				t, err := selectTarget(cmd.Context(), s, args, index, lifecycle.ListOptions{RunningOnly: true})
				if err != nil {
					return err
				}
				if err := s.rec.Stop(cmd.Context(), t); err != nil {
					return err
				}
				logging.Success("Stopped %s", t.Name)
				return nil
			})
		},
	}

	indexFlag(cmd, &index)
	return cmd
}
