package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/term"

	"github.com/thatjpcsguy/cappit/internal/lifecycle"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// NewRemoveCmd creates the remove command
func NewRemoveCmd(a *App) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:     "remove [NAME]",
		Aliases: []string{"rm"},
		Short:   "Remove a challenge container and free its port",
		Args:    targetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				t, err := selectTarget(cmd.Context(), s, args, index, lifecycle.ListOptions{})
				if err != nil {
					return err
				}

				fmt.Fprintf(logging.Out, "🧹 Removing %s...\n", t.Name)
				if err := s.rec.Remove(cmd.Context(), t); err != nil {
					return err
				}
				logging.Success("Removed %s", t.Name)
				return nil
			})
		},
	}

	indexFlag(cmd, &index)
	return cmd
}

// NewClearCmd creates the clear command
func NewClearCmd(a *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every challenge container and free all ports",
		Long: `Force-removes every challenge container, then empties the registry.
The registry is emptied even when some containers could not be removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm("Remove ALL challenge containers and free every port?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(logging.Out, "Aborted")
					return nil
				}
			}

			return a.withSession(func(s *session) error {
				report, err := s.rec.ClearAll(cmd.Context())
				for _, failure := range multierr.Errors(report) {
					logging.Warning("%v", failure)
				}
				if err != nil {
					return fmt.Errorf("failed to clear registry: %w", err)
				}

				if report != nil {
					logging.Warning("Registry cleared; %d container(s) could not be removed", len(multierr.Errors(report)))
					return nil
				}
				logging.Success("All challenges removed")
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

// confirm asks a yes/no question. It refuses when stdin is not a terminal.
func confirm(message string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing to continue without a terminal; pass --yes")
	}

	ok := false
	if err := survey.AskOne(&survey.Confirm{Message: message}, &ok); err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	return ok, nil
}
