package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/cappit/internal/lifecycle"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// NewRunCmd creates the run command
func NewRunCmd(a *App) *cobra.Command {
	var (
		version    string
		port       string
		dockerfile string
	)

	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Build and start a challenge",
		Long: `Generates a Dockerfile for dock_NAME, builds the image and starts the container.

A challenge that already owns a port keeps it. Otherwise --port binds a manual
port, or the lowest free port in the range is allocated. The port is recorded
only after the container started.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := lifecycle.RunRequest{
				Name:       args[0],
				Version:    version,
				ManualPort: port,
			}

			if dockerfile != "" {
				contents, err := os.ReadFile(dockerfile)
				if err != nil {
					return fmt.Errorf("failed to read Dockerfile: %w", err)
				}
				req.Dockerfile = contents
			}

			return a.withSession(func(s *session) error {
				fmt.Fprintf(logging.Out, "🚀 Running %s...\n", req.Name)

				entry, err := s.rec.Run(cmd.Context(), req)
				if err != nil {
					return err
				}

				logging.Success("%s is running on port %d (%s)", entry.Name, entry.Port, entry.Mode)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Base image version (e.g. 18.04)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "Bind this port instead of allocating one")
	cmd.Flags().StringVar(&dockerfile, "dockerfile", "", "Use this Dockerfile instead of generating one")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}
