package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/port"
	"github.com/thatjpcsguy/cappit/internal/registry"
)

func rowNames(s *Snapshot) []string {
	var names []string
	for _, r := range s.Rows {
		names = append(names, r.Name)
	}
	return names
}

func TestList_OrderedByPort(t *testing.T) {
	f := setupFixture(t, port.DefaultRange,
		container("web", "running", 31002),
		container("pwn", "exited", 31000),
		container("stray", "running", 31900),
	)
	require.NoError(t, f.reg.Upsert("web", 31002, registry.ModeAuto))
	require.NoError(t, f.reg.Upsert("pwn", 31000, registry.ModeAuto))
	require.NoError(t, f.reg.Upsert("rev", 31001, registry.ModeManual))

	snap, err := f.rec.List(context.Background(), ListOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"pwn", "rev", "web", "stray"}, rowNames(snap))
	for i, r := range snap.Rows {
		assert.Equal(t, i+1, r.Index)
	}

	assert.Equal(t, StatusNotCreated, snap.Rows[1].Status())
	assert.Equal(t, registry.ModeManual, snap.Rows[1].Mode())
	assert.Equal(t, "exited", snap.Rows[0].Status())
	assert.Equal(t, 31900, snap.Rows[3].Port())
	assert.Equal(t, registry.Mode(""), snap.Rows[3].Mode())
}

func TestList_RunningOnly(t *testing.T) {
	f := setupFixture(t, port.DefaultRange,
		container("web", "running", 31001),
		container("pwn", "exited", 31000),
	)
	require.NoError(t, f.reg.Upsert("web", 31001, registry.ModeAuto))
	require.NoError(t, f.reg.Upsert("pwn", 31000, registry.ModeAuto))
	require.NoError(t, f.reg.Upsert("rev", 31002, registry.ModeManual))

	snap, err := f.rec.List(context.Background(), ListOptions{RunningOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, rowNames(snap))
}

func TestList_FlagsAnomalies(t *testing.T) {
	f := setupFixture(t, port.DefaultRange,
		container("orphan", "running", 31800),
		container("moved", "running", 31010),
	)
	require.NoError(t, f.reg.Upsert("moved", 31003, registry.ModeAuto))
	require.NoError(t, f.reg.Upsert("lost", 31004, registry.ModeAuto))
	require.NoError(t, f.reg.Upsert("pinned", 31005, registry.ModeManual))
	require.NoError(t, f.reg.Upsert("twin", 31005, registry.ModeManual))

	snap, err := f.rec.List(context.Background(), ListOptions{})
	require.NoError(t, err)

	byName := make(map[string]Row)
	for _, r := range snap.Rows {
		byName[r.Name] = r
	}

	assert.Equal(t, []string{"container has no registry entry"}, byName["orphan"].Anomalies)
	assert.Equal(t, []string{"published on 31010 but registered on 31003"}, byName["moved"].Anomalies)
	assert.Equal(t, []string{"registered port has no container"}, byName["lost"].Anomalies)
	assert.Equal(t, []string{"port 31005 also bound to twin"}, byName["pinned"].Anomalies)
	assert.Equal(t, []string{"port 31005 also bound to pinned"}, byName["twin"].Anomalies)

	assert.Len(t, snap.Anomalies(), 5)
}

func TestSnapshot_Select(t *testing.T) {
	f := setupFixture(t, port.DefaultRange,
		container("a", "running", 31000),
		container("b", "running", 31001),
	)
	require.NoError(t, f.reg.Upsert("a", 31000, registry.ModeAuto))
	require.NoError(t, f.reg.Upsert("b", 31001, registry.ModeAuto))

	snap, err := f.rec.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	row, err := snap.Select(2)
	require.NoError(t, err)
	assert.Equal(t, "b", row.Name)
	assert.Equal(t, Target{Name: "b", ContainerID: "id-b", Port: 31001}, row.Target())

	for _, idx := range []int{0, -1, 3} {
		_, err := snap.Select(idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrIndexOutOfRange))
	}
}

func TestSnapshot_SelectIsStable(t *testing.T) {
	f := setupFixture(t, port.DefaultRange,
		container("a", "running", 31000),
		container("b", "running", 31001),
		container("c", "running", 31002),
	)
	ctx := context.Background()
	for i, n := range []string{"a", "b", "c"} {
		require.NoError(t, f.reg.Upsert(n, 31000+i, registry.ModeAuto))
	}

	snap, err := f.rec.List(ctx, ListOptions{})
	require.NoError(t, err)

	// the listing changes between display and selection
	first, err := snap.Select(1)
	require.NoError(t, err)
	require.NoError(t, f.rec.Remove(ctx, first.Target()))

	row, err := snap.Select(2)
	require.NoError(t, err)
	assert.Equal(t, "b", row.Name, "selection must use the displayed snapshot")
}

func TestList_EmptyIndexSelection(t *testing.T) {
	f := setupFixture(t, port.DefaultRange)

	snap, err := f.rec.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())

	_, err = snap.Select(1)
	assert.True(t, errors.Is(err, errors.ErrIndexOutOfRange))
}
