package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/cappit/internal/lifecycle"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// NewListCmd creates the list command
func NewListCmd(a *App) *cobra.Command {
	var (
		running bool
		remote  bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List challenges",
		Long: `Lists every challenge container and registered port, ordered by port.
The numbers in the first column are what --index selects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				remoteArgs := []string{"list"}
				if running {
					remoteArgs = append(remoteArgs, "--running")
				}
				return a.remote(remoteArgs...)
			}

			return a.withSession(func(s *session) error {
				snap, err := s.rec.List(cmd.Context(), lifecycle.ListOptions{RunningOnly: running})
				if err != nil {
					return fmt.Errorf("failed to list challenges: %w", err)
				}
				printSnapshot(cmd.OutOrStdout(), snap)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&running, "running", false, "Only list running containers")
	cmd.Flags().BoolVar(&remote, "remote", false, "List challenges on the remote host")

	return cmd
}

// printSnapshot renders a listing followed by any registry drift
func printSnapshot(w io.Writer, snap *lifecycle.Snapshot) {
	if snap.Len() == 0 {
		fmt.Fprintln(w, "No challenges found")
		return
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
	)
	table.Header("#", "Name", "Port", "Mode", "Status")
	for _, row := range snap.Rows {
		mode := string(row.Mode())
		if mode == "" {
			mode = "-"
		}
		_ = table.Append(row.Index, row.Name, itoa(row.Port()), mode, logging.StatusColor(row.Status()))
	}
	_ = table.Render()

	for _, row := range snap.Anomalies() {
		for _, anomaly := range row.Anomalies {
			logging.Warning("#%d %s: %s", row.Index, row.Name, anomaly)
		}
	}
}
