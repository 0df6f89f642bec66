// Package lifecycle sequences challenge provisioning and keeps the port
// registry consistent with the containers that actually run.
//
// The registry only learns about an auto-allocated port after the whole
// generate, build, run pipeline succeeded, so a failed start never leaves a
// port reserved for a challenge that is not running.
package lifecycle

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/thatjpcsguy/cappit/internal/docker"
	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/logging"
	"github.com/thatjpcsguy/cappit/internal/pipeline"
	"github.com/thatjpcsguy/cappit/internal/port"
	"github.com/thatjpcsguy/cappit/internal/registry"
)

// Runtime is the container runtime the reconciler drives
type Runtime interface {
	ListContainers(ctx context.Context, all bool, status string) ([]docker.ContainerView, error)
	Start(ctx context.Context, challenge string) error
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, force bool) error
	ImageExists(ctx context.Context, name string) (bool, error)
}

// Pipeline builds and starts challenges
type Pipeline interface {
	CheckArtifacts(name string) error
	Generate(ctx context.Context, req pipeline.GenerateRequest) error
	Build(ctx context.Context, name string, port int) error
	Run(ctx context.Context, name string, port int) error
}

// nameRegex matches usable challenge names: container-name safe, no path separators.
var nameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,62}$`)

// ValidateName checks a challenge name
func ValidateName(name string) error {
	if name == "" {
		return errors.InvalidName(name, "name cannot be empty")
	}
	if !nameRegex.MatchString(name) {
		return errors.InvalidName(name, "use letters, digits, '.', '_' or '-' (at most 63 characters)")
	}
	return nil
}

// Options configures a Reconciler
type Options struct {
	Range       port.Range
	Versions    []string
	ImagePrefix string
}

// Reconciler runs lifecycle operations
type Reconciler struct {
	registry *registry.Registry
	runtime  Runtime
	pipeline Pipeline
	opts     Options
}

// New creates a reconciler
func New(reg *registry.Registry, rt Runtime, pl Pipeline, opts Options) *Reconciler {
	if opts.Range.Size() == 0 {
		opts.Range = port.DefaultRange
	}
	return &Reconciler{registry: reg, runtime: rt, pipeline: pl, opts: opts}
}

// RunRequest describes a challenge to create or rebuild
type RunRequest struct {
	Name    string
	Version string
	// ManualPort is the operator's raw port input; empty means allocate.
	ManualPort string
	// Dockerfile replaces the generated Dockerfile when set.
	Dockerfile []byte
}

// Target identifies a challenge and, when one exists, its container
type Target struct {
	Name        string
	ContainerID string
	Port        int
}

// Run builds and starts a challenge, then records its port
func (r *Reconciler) Run(ctx context.Context, req RunRequest) (registry.Entry, error) {
	if err := ValidateName(req.Name); err != nil {
		return registry.Entry{}, err
	}
	if !slices.Contains(r.opts.Versions, req.Version) {
		return registry.Entry{}, errors.UnsupportedVersion(req.Version, r.opts.Versions)
	}

	p, mode, err := r.choosePort(req)
	if err != nil {
		return registry.Entry{}, err
	}
	log := logging.Challenge(req.Name).WithFields(logrus.Fields{"port": p, "mode": mode})

	if err := r.pipeline.CheckArtifacts(req.Name); err != nil {
		return registry.Entry{}, err
	}

	logging.Step("[1] Generate Dockerfile...")
	err = r.pipeline.Generate(ctx, pipeline.GenerateRequest{
		Version:        req.Version,
		Name:           req.Name,
		Port:           p,
		ManualContents: req.Dockerfile,
	})
	if err != nil {
		log.WithError(err).Warn("generate failed")
		return registry.Entry{}, errors.PipelineStepFailed(pipeline.StepGenerate, err)
	}

	logging.Step("[2] Build image...")
	if err := r.pipeline.Build(ctx, req.Name, p); err != nil {
		log.WithError(err).Warn("build failed")
		return registry.Entry{}, errors.PipelineStepFailed(pipeline.StepBuild, err)
	}

	logging.Step("[3] Run container...")
	if err := r.pipeline.Run(ctx, req.Name, p); err != nil {
		log.WithError(err).Warn("run failed")
		return registry.Entry{}, errors.PipelineStepFailed(pipeline.StepRun, err)
	}

	if err := r.registry.Upsert(req.Name, p, mode); err != nil {
		return registry.Entry{}, fmt.Errorf("challenge started but failed to record port %d: %w", p, err)
	}

	return registry.Entry{Name: req.Name, Port: p, Mode: mode}, nil
}

// choosePort keeps an existing reservation, else takes the manual port, else allocates
func (r *Reconciler) choosePort(req RunRequest) (int, registry.Mode, error) {
	existing, found, err := r.registry.Get(req.Name)
	if err != nil {
		return 0, "", err
	}
	if found {
		if req.ManualPort != "" {
			logging.Warning("%s already owns port %d; ignoring requested port %s", req.Name, existing.Port, req.ManualPort)
		}
		return existing.Port, existing.Mode, nil
	}

	if req.ManualPort != "" {
		p, err := port.ValidateManual(r.opts.Range, req.ManualPort)
		if err != nil {
			return 0, "", err
		}
		return p, registry.ModeManual, nil
	}

	used, err := r.registry.ListPorts()
	if err != nil {
		return 0, "", err
	}
	p, err := port.Allocate(r.opts.Range, used)
	if err != nil {
		return 0, "", err
	}
	return p, registry.ModeAuto, nil
}

// Restart re-runs only the start step of an already built challenge
func (r *Reconciler) Restart(ctx context.Context, t Target) error {
	if t.Port == 0 {
		return errors.EntryNotFound(t.Name)
	}

	image := r.opts.ImagePrefix + t.Name
	built, err := r.runtime.ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if !built {
		return errors.MissingArtifacts(t.Name, []string{"image " + image})
	}

	logging.Step("[1] Restart %s...", t.Name)
	if err := r.pipeline.Run(ctx, t.Name, t.Port); err != nil {
		return errors.PipelineStepFailed(pipeline.StepRun, err)
	}

	logging.Challenge(t.Name).Info("restarted")
	return nil
}

// Start starts a stopped container without rebuilding it
func (r *Reconciler) Start(ctx context.Context, t Target) error {
	if t.ContainerID == "" {
		return errors.New(errors.KindGeneral, fmt.Sprintf("challenge %s has no container; run it first", t.Name))
	}
	if err := r.runtime.Start(ctx, t.Name); err != nil {
		return err
	}

	logging.Challenge(t.Name).Info("started")
	return nil
}

// Stop stops a challenge's container. Its port stays reserved.
func (r *Reconciler) Stop(ctx context.Context, t Target) error {
	if t.ContainerID == "" {
		return errors.New(errors.KindGeneral, fmt.Sprintf("challenge %s has no container", t.Name))
	}
	if err := r.runtime.Stop(ctx, t.ContainerID); err != nil {
		return err
	}

	logging.Challenge(t.Name).Info("stopped")
	return nil
}

// Remove force-removes the container, then frees the port. An entry that is
// already gone (e.g. after a crash between the two steps) is not an error.
func (r *Reconciler) Remove(ctx context.Context, t Target) error {
	if t.ContainerID != "" {
		logging.Step("[1] Remove container...")
		if err := r.runtime.Remove(ctx, t.ContainerID, true); err != nil {
			return err
		}
	}

	logging.Step("[2] Unbind port...")
	err := r.registry.Remove(t.Name)
	if err != nil && !errors.Is(err, errors.ErrEntryNotFound) {
		return err
	}

	return nil
}

// ClearAll removes every challenge container, then empties the registry
// regardless of removal failures. Removal failures are returned as report;
// err is only set when the registry could not be cleared.
func (r *Reconciler) ClearAll(ctx context.Context) (report error, err error) {
	logging.Step("[1] Remove all containers...")
	views, listErr := r.runtime.ListContainers(ctx, true, "")
	report = multierr.Append(report, listErr)

	for _, v := range views {
		if rmErr := r.runtime.Remove(ctx, v.ID, true); rmErr != nil {
			logging.Challenge(v.Challenge).WithError(rmErr).Warn("remove failed during clear")
			report = multierr.Append(report, fmt.Errorf("%s: %w", v.Name, rmErr))
		}
	}

	logging.Step("[2] Unbind all ports...")
	if err := r.registry.Clear(); err != nil {
		return report, err
	}

	return report, nil
}

// Bind reserves a port for name without touching the runtime. The port is
// not checked against other entries; collisions show up in List.
func (r *Reconciler) Bind(name, portInput string) (registry.Entry, error) {
	if err := ValidateName(name); err != nil {
		return registry.Entry{}, err
	}

	p, err := port.ValidateManual(r.opts.Range, portInput)
	if err != nil {
		return registry.Entry{}, err
	}

	entries, err := r.registry.Entries()
	if err != nil {
		return registry.Entry{}, err
	}
	for _, e := range entries {
		if e.Port == p && e.Name != name {
			logging.Warning("port %d is also bound to %s", p, e.Name)
		}
	}

	if err := r.registry.Upsert(name, p, registry.ModeManual); err != nil {
		return registry.Entry{}, err
	}

	return registry.Entry{Name: name, Port: p, Mode: registry.ModeManual}, nil
}

// Resolve finds the target for a challenge name
func (r *Reconciler) Resolve(ctx context.Context, name string) (Target, error) {
	views, err := r.runtime.ListContainers(ctx, true, "")
	if err != nil {
		return Target{}, err
	}

	entry, found, err := r.registry.Get(name)
	if err != nil {
		return Target{}, err
	}

	t := Target{Name: name}
	if found {
		t.Port = entry.Port
	}
	for _, v := range views {
		if v.Challenge == name {
			t.ContainerID = v.ID
			if t.Port == 0 {
				t.Port = v.HostPort
			}
			break
		}
	}

	if !found && t.ContainerID == "" {
		return Target{}, errors.EntryNotFound(name)
	}

	return t, nil
}

// Entry returns the registry entry for name
func (r *Reconciler) Entry(name string) (registry.Entry, error) {
	e, found, err := r.registry.Get(name)
	if err != nil {
		return registry.Entry{}, err
	}
	if !found {
		return registry.Entry{}, errors.EntryNotFound(name)
	}
	return e, nil
}
