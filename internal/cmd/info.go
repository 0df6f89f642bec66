package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/lifecycle"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// NewInfoCmd creates the info command
func NewInfoCmd(a *App) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "info NAME",
		Short: "Show challenge info",
		Long:  `Shows the registered port, binding mode and container state of one challenge.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				return a.remote("info", args[0])
			}

			return a.withSession(func(s *session) error {
				snap, err := s.rec.List(cmd.Context(), lifecycle.ListOptions{})
				if err != nil {
					return err
				}

				for _, row := range snap.Rows {
					if row.Name == args[0] {
						printInfo(cmd, a, row)
						return nil
					}
				}
				return errors.EntryNotFound(args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Show info from the remote host")

	return cmd
}

func printInfo(cmd *cobra.Command, a *App, row lifecycle.Row) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Challenge: %s\n", row.Name)
	fmt.Fprintf(w, "Port:      %s\n", itoa(row.Port()))
	if row.Entry != nil {
		fmt.Fprintf(w, "Mode:      %s\n", row.Entry.Mode)
		if !row.Entry.UpdatedAt.IsZero() {
			fmt.Fprintf(w, "Updated:   %s\n", row.Entry.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Fprintf(w, "Mode:      unregistered\n")
	}
	fmt.Fprintf(w, "Status:    %s\n", logging.StatusColor(row.Status()))
	if row.Container != nil {
		fmt.Fprintf(w, "Container: %s (%s)\n", row.Container.Name, shortID(row.Container.ID))
	}
	fmt.Fprintf(w, "Directory: %s/%s%s\n", a.Config.WorkDir, a.Config.DirPrefix, row.Name)

	for _, anomaly := range row.Anomalies {
		logging.Warning("%s", anomaly)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
