package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thatjpcsguy/cappit/internal/docker"
	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/pipeline"
	"github.com/thatjpcsguy/cappit/internal/port"
	"github.com/thatjpcsguy/cappit/internal/registry"
)

// fakeRuntime keeps containers in memory keyed by challenge name.
type fakeRuntime struct {
	mu         sync.Mutex
	containers []docker.ContainerView
	images     map[string]bool
	listErr    error
	removeErr  map[string]error
	calls      []string
}

func newFakeRuntime(views ...docker.ContainerView) *fakeRuntime {
	return &fakeRuntime{containers: views, images: map[string]bool{}, removeErr: map[string]error{}}
}

func (f *fakeRuntime) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRuntime) ListContainers(_ context.Context, _ bool, status string) ([]docker.ContainerView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []docker.ContainerView
	for _, c := range f.containers {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRuntime) Start(_ context.Context, challenge string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start %s", challenge)
	for i := range f.containers {
		if f.containers[i].Challenge == challenge {
			f.containers[i].Status = "running"
			return nil
		}
	}
	return errors.RuntimeUnreachable("start", fmt.Errorf("no such container: %s", challenge))
}

func (f *fakeRuntime) Stop(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop %s", id)
	for i := range f.containers {
		if f.containers[i].ID == id {
			f.containers[i].Status = "exited"
		}
	}
	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, id string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove %s", id)
	if err := f.removeErr[id]; err != nil {
		return err
	}
	kept := f.containers[:0]
	for _, c := range f.containers {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.containers = kept
	return nil
}

func (f *fakeRuntime) ImageExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[name], nil
}

// fakePipeline records steps and fails the configured one.
type fakePipeline struct {
	missing error
	failAt  string
	steps   []string
	// onRun is called when the run step succeeds, e.g. to create a container.
	onRun func(name string, port int)
}

func (f *fakePipeline) CheckArtifacts(string) error {
	return f.missing
}

func (f *fakePipeline) step(step, name string, port int) error {
	f.steps = append(f.steps, fmt.Sprintf("%s %s %d", step, name, port))
	if f.failAt == step {
		return fmt.Errorf("%s exited with status 1", step)
	}
	return nil
}

func (f *fakePipeline) Generate(_ context.Context, req pipeline.GenerateRequest) error {
	return f.step(pipeline.StepGenerate, req.Name, req.Port)
}

func (f *fakePipeline) Build(_ context.Context, name string, port int) error {
	return f.step(pipeline.StepBuild, name, port)
}

func (f *fakePipeline) Run(_ context.Context, name string, port int) error {
	if err := f.step(pipeline.StepRun, name, port); err != nil {
		return err
	}
	if f.onRun != nil {
		f.onRun(name, port)
	}
	return nil
}

type fixture struct {
	rec      *Reconciler
	reg      *registry.Registry
	runtime  *fakeRuntime
	pipeline *fakePipeline
}

func setupFixture(t *testing.T, r port.Range, views ...docker.ContainerView) *fixture {
	t.Helper()
	reg, err := registry.Open(registry.BackendJSON, filepath.Join(t.TempDir(), "challs.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	rt := newFakeRuntime(views...)
	pl := &fakePipeline{}
	pl.onRun = func(name string, p int) {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		for i := range rt.containers {
			if rt.containers[i].Challenge == name {
				rt.containers[i].Status = "running"
				return
			}
		}
		rt.containers = append(rt.containers, docker.ContainerView{
			ID:        "id-" + name,
			Name:      "cappit_" + name,
			Challenge: name,
			Status:    "running",
			HostPort:  p,
		})
	}

	rec := New(reg, rt, pl, Options{Range: r, Versions: []string{"16.04", "18.04"}})
	return &fixture{rec: rec, reg: reg, runtime: rt, pipeline: pl}
}

func container(name, status string, hostPort int) docker.ContainerView {
	return docker.ContainerView{
		ID:        "id-" + name,
		Name:      "cappit_" + name,
		Challenge: name,
		Status:    status,
		HostPort:  hostPort,
	}
}
