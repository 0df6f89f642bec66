package cmd

import (
	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/cappit/internal/logging"
)

// NewBindCmd creates the bind command
func NewBindCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bind NAME PORT",
		Short: "Reserve a port for a challenge without starting it",
		Long: `Records PORT as the challenge's manual port. No container is touched.
The port must lie in the configured range.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				entry, err := s.rec.Bind(args[0], args[1])
				if err != nil {
					return err
				}
				logging.Success("Bound %s to port %d", entry.Name, entry.Port)
				return nil
			})
		},
	}

	return cmd
}
