package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/term"

	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/lifecycle"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

const (
	menuList    = "List challenges"
	menuRun     = "Run challenge"
	menuRestart = "Restart challenge"
	menuStop    = "Stop challenge"
	menuRemove  = "Remove challenge"
	menuBind    = "Bind port"
	menuClear   = "Clear all"
	menuQuit    = "Quit"
)

// NewMenuCmd creates the interactive menu command
func NewMenuCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Interactive challenge menu",
		Long:  `Prompts for an action, shows the numbered challenge list and asks which one to act on.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("menu needs an interactive terminal; use the subcommands instead")
			}

			return a.withSession(func(s *session) error {
				m := &menu{app: a, s: s, cmd: cmd}
				return m.loop(cmd.Context())
			})
		},
	}

	return cmd
}

type menu struct {
	app *App
	s   *session
	cmd *cobra.Command
}

func (m *menu) loop(ctx context.Context) error {
	options := []string{menuList, menuRun, menuRestart, menuStop, menuRemove, menuBind, menuClear, menuQuit}

	for {
		fmt.Fprintln(logging.Out)

		choice := ""
		if err := survey.AskOne(&survey.Select{Message: "Main menu", Options: options}, &choice); err != nil {
			if stderrors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}

		if choice == menuQuit {
			return nil
		}

		if err := m.do(ctx, choice); err != nil {
			if stderrors.Is(err, terminal.InterruptErr) {
				continue
			}
			logging.Failure("%v", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (m *menu) do(ctx context.Context, choice string) error {
	rec := m.s.rec

	switch choice {
	case menuList:
		snap, err := rec.List(ctx, lifecycle.ListOptions{})
		if err != nil {
			return err
		}
		printSnapshot(m.cmd.OutOrStdout(), snap)

	case menuRun:
		return m.run(ctx)

	case menuRestart:
		t, err := m.pick(ctx, lifecycle.ListOptions{})
		if err != nil {
			return err
		}
		if err := rec.Restart(ctx, t); err != nil {
			return err
		}
		logging.Success("Restarted %s", t.Name)

	case menuStop:
		t, err := m.pick(ctx, lifecycle.ListOptions{RunningOnly: true})
		if err != nil {
			return err
		}
		if err := rec.Stop(ctx, t); err != nil {
			return err
		}
		logging.Success("Stopped %s", t.Name)

	case menuRemove:
		t, err := m.pick(ctx, lifecycle.ListOptions{})
		if err != nil {
			return err
		}
		if err := rec.Remove(ctx, t); err != nil {
			return err
		}
		logging.Success("Removed %s", t.Name)

	case menuBind:
		var answers struct {
			Name string
			Port string
		}
		qs := []*survey.Question{
			{Name: "name", Prompt: &survey.Input{Message: "name:"}, Validate: survey.Required},
			{Name: "port", Prompt: &survey.Input{Message: "port:"}, Validate: survey.Required},
		}
		if err := survey.Ask(qs, &answers); err != nil {
			return err
		}
		entry, err := rec.Bind(strings.TrimSpace(answers.Name), answers.Port)
		if err != nil {
			return err
		}
		logging.Success("Bound %s to port %d", entry.Name, entry.Port)

	case menuClear:
		ok, err := confirm("Remove ALL challenge containers and free every port?")
		if err != nil || !ok {
			return err
		}
		report, err := rec.ClearAll(ctx)
		for _, failure := range multierr.Errors(report) {
			logging.Warning("%v", failure)
		}
		if err != nil {
			return err
		}
		logging.Success("Clear complete")
	}

	return nil
}

func (m *menu) run(ctx context.Context) error {
	var answers struct {
		Name    string
		Version string
		Port    string
	}
	qs := []*survey.Question{
		{Name: "name", Prompt: &survey.Input{Message: "name:"}, Validate: survey.Required},
		{Name: "version", Prompt: &survey.Select{Message: "version:", Options: m.app.Config.Versions}},
		{Name: "port", Prompt: &survey.Input{Message: "port (empty to allocate):"}},
	}
	if err := survey.Ask(qs, &answers); err != nil {
		return err
	}

	entry, err := m.s.rec.Run(ctx, lifecycle.RunRequest{
		Name:       strings.TrimSpace(answers.Name),
		Version:    answers.Version,
		ManualPort: strings.TrimSpace(answers.Port),
	})
	if err != nil {
		return err
	}

	logging.Success("Challenge is now running on %d", entry.Port)
	return nil
}

// pick shows one snapshot and selects from that same snapshot
func (m *menu) pick(ctx context.Context, opts lifecycle.ListOptions) (lifecycle.Target, error) {
	snap, err := m.s.rec.List(ctx, opts)
	if err != nil {
		return lifecycle.Target{}, err
	}
	printSnapshot(m.cmd.OutOrStdout(), snap)
	if snap.Len() == 0 {
		return lifecycle.Target{}, errors.IndexOutOfRange(1, 0)
	}

	answer := ""
	if err := survey.AskOne(&survey.Input{Message: "which? (idx)"}, &answer); err != nil {
		return lifecycle.Target{}, err
	}

	return selectIndex(snap, answer)
}

// selectIndex resolves a typed 1-based index against snap
func selectIndex(snap *lifecycle.Snapshot, answer string) (lifecycle.Target, error) {
	if snap.Len() == 0 {
		return lifecycle.Target{}, errors.IndexOutOfRange(1, 0)
	}

	index, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return lifecycle.Target{}, errors.New(errors.KindIndexOutOfRange, fmt.Sprintf("%q is not a number", answer))
	}

	row, err := snap.Select(index)
	if err != nil {
		return lifecycle.Target{}, err
	}
	return row.Target(), nil
}
