package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatjpcsguy/cappit/internal/config"
	"github.com/thatjpcsguy/cappit/internal/docker"
	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/logging"
	"github.com/thatjpcsguy/cappit/internal/registry"
)

// fakeRuntime is shared by every command run in one test.
type fakeRuntime struct {
	mu         sync.Mutex
	containers []docker.ContainerView
	removed    []string
}

func (f *fakeRuntime) ListContainers(_ context.Context, _ bool, status string) ([]docker.ContainerView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []docker.ContainerView
	for _, c := range f.containers {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRuntime) Start(context.Context, string) error { return nil }
func (f *fakeRuntime) Stop(context.Context, string) error  { return nil }

func (f *fakeRuntime) Remove(_ context.Context, id string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	kept := f.containers[:0]
	for _, c := range f.containers {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.containers = kept
	return nil
}

func (f *fakeRuntime) ImageExists(context.Context, string) (bool, error) { return true, nil }

func (f *fakeRuntime) Logs(_ context.Context, id string, w io.Writer, _ bool, tail string) error {
	_, err := fmt.Fprintf(w, "logs of %s (tail %s)\n", id, tail)
	return err
}

func (f *fakeRuntime) Close() error { return nil }

type env struct {
	dir     string
	runtime *fakeRuntime
	out     *bytes.Buffer
}

// setupEnv isolates HOME and the working dir and captures operator output.
func setupEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)

	var out bytes.Buffer
	oldOut, oldErr := logging.Out, logging.ErrOut
	logging.Out, logging.ErrOut = &out, &out
	t.Cleanup(func() { logging.Out, logging.ErrOut = oldOut, oldErr })

	return &env{dir: dir, runtime: &fakeRuntime{}, out: &out}
}

// execute runs one cappit invocation against the fake runtime.
func (e *env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := NewApp()
	a.NewRuntime = func(*config.Config) (Runtime, error) { return e.runtime, nil }

	root := newRootCmd(a, "test")
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stdout)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

// addChallenge creates dock_<name> whose run.sh registers a fake container.
func (e *env) addChallenge(t *testing.T, name string) {
	t.Helper()
	dir := filepath.Join(e.dir, "dock_"+name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flag"), []byte("flag{x}\n"), 0644))
	for _, script := range []string{"gendock.sh", "build.sh", "run.sh"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, script), []byte("#!/bin/sh\necho $0 $CAPPIT_PORT\n"), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".cappit.config"), []byte("GENERATE_COMMAND=./gendock.sh\n"), 0644))
}

func (e *env) entries(t *testing.T) []registry.Entry {
	t.Helper()
	reg, err := registry.Open(registry.BackendJSON, filepath.Join(e.dir, "challs.json"))
	require.NoError(t, err)
	defer func() { _ = reg.Close() }()
	entries, err := reg.Entries()
	require.NoError(t, err)
	return entries
}

func TestRunCommand_RecordsPortAfterPipeline(t *testing.T) {
	e := setupEnv(t)
	e.addChallenge(t, "pwn1")

	_, err := e.execute(t, "run", "pwn1", "--version", "18.04")
	require.NoError(t, err)

	assert.Contains(t, e.out.String(), "./run.sh 31000")
	assert.Contains(t, e.out.String(), "pwn1 is running on port 31000 (auto)")

	entries := e.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 31000, entries[0].Port)
}

func TestRunCommand_MissingArtifactsExitCode(t *testing.T) {
	e := setupEnv(t)

	_, err := e.execute(t, "run", "ghost", "--version", "18.04")
	require.Error(t, err)
	assert.Equal(t, errors.ExitMissingArtifacts, errors.GetExitCode(err))
	assert.Empty(t, e.entries(t))
}

func TestRunCommand_UnsupportedVersion(t *testing.T) {
	e := setupEnv(t)
	e.addChallenge(t, "pwn1")

	_, err := e.execute(t, "run", "pwn1", "--version", "22.04")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedVersion))
}

func TestBindAndList(t *testing.T) {
	e := setupEnv(t)
	e.runtime.containers = []docker.ContainerView{
		{ID: "abc", Name: "cappit_web", Challenge: "web", Status: "running", HostPort: 31001},
	}

	_, err := e.execute(t, "bind", "web", "31001")
	require.NoError(t, err)
	_, err = e.execute(t, "bind", "pinned", "31500")
	require.NoError(t, err)

	out, err := e.execute(t, "list")
	require.NoError(t, err)

	webLine, pinnedLine := -1, -1
	for i, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "web"):
			webLine = i
			assert.Contains(t, line, "31001")
			assert.Contains(t, line, "running")
		case strings.Contains(line, "pinned"):
			pinnedLine = i
			assert.Contains(t, line, "not created")
		}
	}
	require.NotEqual(t, -1, webLine)
	assert.Less(t, webLine, pinnedLine, "rows are ordered by port")
}

func TestBind_InvalidPort(t *testing.T) {
	e := setupEnv(t)

	_, err := e.execute(t, "bind", "web", "30000")
	require.Error(t, err)
	assert.Equal(t, errors.ExitInvalidInput, errors.GetExitCode(err))
}

func TestRemoveByIndex(t *testing.T) {
	e := setupEnv(t)
	e.runtime.containers = []docker.ContainerView{
		{ID: "a1", Name: "cappit_a", Challenge: "a", Status: "running", HostPort: 31000},
		{ID: "b2", Name: "cappit_b", Challenge: "b", Status: "exited", HostPort: 31001},
	}
	_, err := e.execute(t, "bind", "a", "31000")
	require.NoError(t, err)
	_, err = e.execute(t, "bind", "b", "31001")
	require.NoError(t, err)

	_, err = e.execute(t, "remove", "--index", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, e.runtime.removed)

	entries := e.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)

	_, err = e.execute(t, "remove", "--index", "5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIndexOutOfRange))

	_, err = e.execute(t, "remove", "--index", "0")
	assert.True(t, errors.Is(err, errors.ErrIndexOutOfRange))
}

func TestTargetArgs(t *testing.T) {
	e := setupEnv(t)

	_, err := e.execute(t, "stop")
	assert.ErrorContains(t, err, "a challenge name or --index is required")

	_, err = e.execute(t, "stop", "a", "--index", "1")
	assert.ErrorContains(t, err, "not both")
}

func TestClearYes(t *testing.T) {
	e := setupEnv(t)
	e.runtime.containers = []docker.ContainerView{
		{ID: "a1", Name: "cappit_a", Challenge: "a", Status: "running"},
	}
	_, err := e.execute(t, "bind", "a", "31000")
	require.NoError(t, err)

	_, err = e.execute(t, "clear", "--yes")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, e.runtime.removed)
	assert.Empty(t, e.entries(t))
}

func TestInfoAndLogs(t *testing.T) {
	e := setupEnv(t)
	e.runtime.containers = []docker.ContainerView{
		{ID: "0123456789abcdef", Name: "cappit_a", Challenge: "a", Status: "running", HostPort: 31000},
	}
	_, err := e.execute(t, "bind", "a", "31000")
	require.NoError(t, err)

	out, err := e.execute(t, "info", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "Port:      31000")
	assert.Contains(t, out, "Mode:      manual")
	assert.Contains(t, out, "Container: cappit_a (0123456789ab)")

	_, err = e.execute(t, "info", "ghost")
	assert.True(t, errors.Is(err, errors.ErrEntryNotFound))

	out, err = e.execute(t, "logs", "a", "--tail", "5")
	require.NoError(t, err)
	assert.Equal(t, "logs of 0123456789abcdef (tail 5)\n", out)
}

func TestSQLiteStorageFlag(t *testing.T) {
	e := setupEnv(t)

	_, err := e.execute(t, "--storage", "sqlite", "--state", "registry.db", "bind", "a", "31000")
	require.NoError(t, err)

	reg, err := registry.Open(registry.BackendSQLite, filepath.Join(e.dir, "registry.db"))
	require.NoError(t, err)
	defer func() { _ = reg.Close() }()

	entry, ok, err := reg.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, registry.ModeManual, entry.Mode)
}
