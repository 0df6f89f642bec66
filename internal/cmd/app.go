package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/thatjpcsguy/cappit/internal/config"
	"github.com/thatjpcsguy/cappit/internal/docker"
	"github.com/thatjpcsguy/cappit/internal/lifecycle"
	"github.com/thatjpcsguy/cappit/internal/logging"
	"github.com/thatjpcsguy/cappit/internal/pipeline"
	"github.com/thatjpcsguy/cappit/internal/registry"
	"github.com/thatjpcsguy/cappit/internal/ssh"
)

// Runtime is the container runtime commands work against
type Runtime interface {
	lifecycle.Runtime
	Logs(ctx context.Context, id string, w io.Writer, follow bool, tail string) error
	Close() error
}

// App holds state shared by all subcommands
type App struct {
	Viper      *viper.Viper
	ConfigFile string
	Config     *config.Config

	// NewRuntime connects to the container runtime. Tests replace it.
	NewRuntime func(cfg *config.Config) (Runtime, error)
}

// NewApp creates an App backed by the Docker daemon
func NewApp() *App {
	return &App{
		Viper: viper.New(),
		NewRuntime: func(cfg *config.Config) (Runtime, error) {
			return docker.NewClient(cfg.ContainerPrefix, cfg.ContainerPort)
		},
	}
}

// setup loads configuration and configures logging
func (a *App) setup() error {
	cfg, err := config.Load(a.Viper, a.ConfigFile)
	if err != nil {
		return err
	}
	a.Config = cfg

	logging.Setup(logging.Options{
		Verbose: cfg.Verbose,
		JSON:    cfg.LogJSON,
		File:    cfg.LogFile,
	})
	logging.Log.WithField("state", cfg.StatePath).Debug("configuration loaded")

	return nil
}

// session is one opened registry plus runtime
type session struct {
	reg     *registry.Registry
	runtime Runtime
	rec     *lifecycle.Reconciler
}

func (a *App) open() (*session, error) {
	cfg := a.Config

	reg, err := registry.Open(cfg.Storage, cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	rt, err := a.NewRuntime(cfg)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	pl := pipeline.New(pipeline.Options{
		WorkDir:         cfg.WorkDir,
		DirPrefix:       cfg.DirPrefix,
		RequiredFiles:   cfg.RequiredFiles,
		GenerateCommand: cfg.GenerateCommand,
		BuildCommand:    cfg.BuildCommand,
		RunCommand:      cfg.RunCommand,
		Stdout:          logging.Out,
		Stderr:          logging.ErrOut,
	})

	rec := lifecycle.New(reg, rt, pl, lifecycle.Options{
		Range:       cfg.Range(),
		Versions:    cfg.Versions,
		ImagePrefix: cfg.ImagePrefix,
	})

	return &session{reg: reg, runtime: rt, rec: rec}, nil
}

func (s *session) Close() error {
	return multierr.Combine(s.runtime.Close(), s.reg.Close())
}

// withSession opens a session for the duration of fn
func (a *App) withSession(fn func(s *session) error) (err error) {
	s, err := a.open()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	return fn(s)
}

// remote runs this same subcommand on the configured challenge host
func (a *App) remote(args ...string) error {
	cfg := a.Config
	if err := cfg.ValidateRemote(); err != nil {
		return err
	}

	fmt.Fprintf(logging.Out, "Connecting to %s@%s...\n", cfg.RemoteUser, cfg.RemoteHost)

	client, err := ssh.NewClient(ssh.Options{User: cfg.RemoteUser, Host: cfg.RemoteHost, KeyPath: cfg.SSHKeyPath})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	installed, err := client.CheckInstalled()
	if err != nil {
		return err
	}
	if !installed {
		return fmt.Errorf("%s is not installed on %s", ssh.RemoteBinary, cfg.RemoteHost)
	}

	return client.ExecuteInteractive(ssh.RemoteCommand(cfg.RemoteDir, args), logging.Out, logging.ErrOut)
}

// selectTarget resolves NAME or --index N against the default listing
func selectTarget(ctx context.Context, s *session, args []string, index int, opts lifecycle.ListOptions) (lifecycle.Target, error) {
	if len(args) == 1 {
		return s.rec.Resolve(ctx, args[0])
	}

	snap, err := s.rec.List(ctx, opts)
	if err != nil {
		return lifecycle.Target{}, err
	}
	row, err := snap.Select(index)
	if err != nil {
		return lifecycle.Target{}, err
	}
	return row.Target(), nil
}

// targetArgs accepts either a NAME argument or the --index flag
func targetArgs(cmd *cobra.Command, args []string) error {
	byIndex := cmd.Flags().Changed("index")
	switch {
	case len(args) > 1:
		return fmt.Errorf("accepts at most one challenge name, received %d", len(args))
	case len(args) == 1 && byIndex:
		return fmt.Errorf("use either a challenge name or --index, not both")
	case len(args) == 0 && !byIndex:
		return fmt.Errorf("a challenge name or --index is required")
	}
	return nil
}

func indexFlag(cmd *cobra.Command, index *int) {
	cmd.Flags().IntVarP(index, "index", "i", 0, "Select the challenge by its number in 'cappit list'")
}

func itoa(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}
