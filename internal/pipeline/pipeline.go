// Package pipeline runs the external steps that turn a challenge directory
// into a running container: generate a Dockerfile, build the image, start
// the container. Each step is an opaque process; only its exit status counts.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/kballard/go-shellquote"

	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// Step names, used in PipelineStepFailed errors
const (
	StepGenerate = "generate"
	StepBuild    = "build"
	StepRun      = "run"
)

// Options configures where challenges live and which commands build them
type Options struct {
	WorkDir         string
	DirPrefix       string
	RequiredFiles   []string
	GenerateCommand string
	BuildCommand    string
	RunCommand      string
	Stdout          io.Writer
	Stderr          io.Writer
}

// GenerateRequest holds the inputs of the generate step
type GenerateRequest struct {
	Version string
	Name    string
	Port    int
	// ManualContents, when set, is written as the Dockerfile instead of
	// running the generate command.
	ManualContents []byte
}

// Pipeline runs challenge build steps
type Pipeline struct {
	opts Options
}

// New creates a pipeline
func New(opts Options) *Pipeline {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Pipeline{opts: opts}
}

// Dir returns the challenge's build directory inside the work dir
func (p *Pipeline) Dir(name string) (string, error) {
	dir, err := securejoin.SecureJoin(p.opts.WorkDir, p.opts.DirPrefix+name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve challenge directory: %w", err)
	}
	return dir, nil
}

// CheckArtifacts verifies the challenge directory and its required files exist
func (p *Pipeline) CheckArtifacts(name string) error {
	dir, err := p.Dir(name)
	if err != nil {
		return err
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return errors.MissingArtifacts(name, []string{filepath.Base(dir) + "/"})
	}

	var missing []string
	for _, f := range p.opts.RequiredFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return errors.MissingArtifacts(name, missing)
	}

	return nil
}

// Generate produces the challenge's Dockerfile
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) error {
	dir, err := p.Dir(req.Name)
	if err != nil {
		return err
	}

	if req.ManualContents != nil {
		logging.Challenge(req.Name).Debug("writing manual Dockerfile")
		if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), req.ManualContents, 0644); err != nil {
			return fmt.Errorf("failed to write Dockerfile: %w", err)
		}
		return nil
	}

	env := stepEnv(req.Name, req.Port, req.Version)
	return p.run(ctx, dir, p.opts.GenerateCommand, env, req.Version, req.Name, strconv.Itoa(req.Port))
}

// Build builds the challenge image
func (p *Pipeline) Build(ctx context.Context, name string, port int) error {
	dir, err := p.Dir(name)
	if err != nil {
		return err
	}
	return p.run(ctx, dir, p.opts.BuildCommand, stepEnv(name, port, ""))
}

// Run starts the challenge container
func (p *Pipeline) Run(ctx context.Context, name string, port int) error {
	dir, err := p.Dir(name)
	if err != nil {
		return err
	}
	return p.run(ctx, dir, p.opts.RunCommand, stepEnv(name, port, ""))
}

// run executes a configured command line in dir with extra arguments appended
func (p *Pipeline) run(ctx context.Context, dir, command string, env []string, extra ...string) error {
	argv, err := shellquote.Split(command)
	if err != nil {
		return fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("no command configured")
	}
	argv = append(argv, extra...)

	logging.Log.WithField("dir", dir).Debugf("running %s", shellquote.Join(argv...))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = p.opts.Stdout
	cmd.Stderr = p.opts.Stderr
	cmd.Env = append(os.Environ(), env...)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", argv[0], err)
	}

	return nil
}

func stepEnv(name string, port int, version string) []string {
	env := []string{
		"CAPPIT_NAME=" + name,
		"CAPPIT_PORT=" + strconv.Itoa(port),
	}
	if version != "" {
		env = append(env, "CAPPIT_VERSION="+version)
	}
	return env
}
