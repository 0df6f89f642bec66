package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/cappit/internal/lifecycle"
)

// NewLogsCmd creates the logs command
func NewLogsCmd(a *App) *cobra.Command {
	var (
		index  int
		remote bool
		follow bool
		tail   int
	)

	cmd := &cobra.Command{
		Use:   "logs [NAME]",
		Short: "View container logs for a challenge",
		Args:  targetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				if len(args) != 1 {
					return fmt.Errorf("--remote needs a challenge name")
				}
				remoteArgs := []string{"logs", args[0], "--tail", strconv.Itoa(tail)}
				if follow {
					remoteArgs = append(remoteArgs, "--follow")
				}
				return a.remote(remoteArgs...)
			}

			return a.withSession(func(s *session) error {
				t, err := selectTarget(cmd.Context(), s, args, index, lifecycle.ListOptions{})
				if err != nil {
					return err
				}
				if t.ContainerID == "" {
					return fmt.Errorf("challenge %s has no container", t.Name)
				}

				tailArg := "all"
				if tail > 0 {
					tailArg = strconv.Itoa(tail)
				}
				return s.runtime.Logs(cmd.Context(), t.ContainerID, cmd.OutOrStdout(), follow, tailArg)
			})
		},
	}

	indexFlag(cmd, &index)
	cmd.Flags().BoolVar(&remote, "remote", false, "View logs on the remote host")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&tail, "tail", "n", 100, "Number of lines to show (0 for all)")

	return cmd
}
