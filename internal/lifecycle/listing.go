package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/thatjpcsguy/cappit/internal/docker"
	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/logging"
	"github.com/thatjpcsguy/cappit/internal/registry"
)

// StatusNotCreated is shown for registry entries with no container
const StatusNotCreated = "not created"

// ListOptions controls which challenges a listing includes
type ListOptions struct {
	// RunningOnly limits the listing to running containers.
	RunningOnly bool
}

// Row is one listed challenge
type Row struct {
	Index     int
	Name      string
	Entry     *registry.Entry
	Container *docker.ContainerView
	Anomalies []string
}

// Port returns the registered port, or the published one for unregistered containers
func (r Row) Port() int {
	if r.Entry != nil {
		return r.Entry.Port
	}
	if r.Container != nil {
		return r.Container.HostPort
	}
	return 0
}

// Mode returns the binding mode, empty when unregistered
func (r Row) Mode() registry.Mode {
	if r.Entry == nil {
		return ""
	}
	return r.Entry.Mode
}

// Status returns the container status
func (r Row) Status() string {
	if r.Container == nil {
		return StatusNotCreated
	}
	return r.Container.Status
}

// Target returns what lifecycle operations act on
func (r Row) Target() Target {
	t := Target{Name: r.Name, Port: r.Port()}
	if r.Container != nil {
		t.ContainerID = r.Container.ID
	}
	return t
}

// Snapshot is a listing taken once and used for index selection
type Snapshot struct {
	Rows []Row
}

// Len returns the number of rows
func (s *Snapshot) Len() int {
	return len(s.Rows)
}

// Select returns the row at 1-based index
func (s *Snapshot) Select(index int) (Row, error) {
	if index < 1 || index > len(s.Rows) {
		return Row{}, errors.IndexOutOfRange(index, len(s.Rows))
	}
	return s.Rows[index-1], nil
}

// Anomalies returns every row that disagrees with the registry
func (s *Snapshot) Anomalies() []Row {
	var rows []Row
	for _, row := range s.Rows {
		if len(row.Anomalies) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// List joins containers with registry entries. Rows are ordered by port,
// unregistered containers last, and numbered from 1 in that order.
func (r *Reconciler) List(ctx context.Context, opts ListOptions) (*Snapshot, error) {
	status := ""
	if opts.RunningOnly {
		status = "running"
	}

	views, err := r.runtime.ListContainers(ctx, true, status)
	if err != nil {
		return nil, err
	}

	entries, err := r.registry.Entries()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]registry.Entry, len(entries))
	byPort := make(map[int][]string)
	for _, e := range entries {
		byName[e.Name] = e
		byPort[e.Port] = append(byPort[e.Port], e.Name)
	}

	seen := make(map[string]bool, len(views))
	rows := make([]Row, 0, len(views)+len(entries))
	for i := range views {
		v := views[i]
		if seen[v.Challenge] {
			continue
		}
		seen[v.Challenge] = true

		row := Row{Name: v.Challenge, Container: &v}
		if e, ok := byName[v.Challenge]; ok {
			row.Entry = &e
		}
		row.Anomalies = anomalies(row, byPort)
		rows = append(rows, row)
	}

	if !opts.RunningOnly {
		for _, e := range entries {
			if seen[e.Name] {
				continue
			}
			row := Row{Name: e.Name, Entry: &e}
			row.Anomalies = anomalies(row, byPort)
			rows = append(rows, row)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := rows[i].Entry != nil, rows[j].Entry != nil
		if ri != rj {
			return ri
		}
		if rows[i].Port() != rows[j].Port() {
			return rows[i].Port() < rows[j].Port()
		}
		return rows[i].Name < rows[j].Name
	})

	for i := range rows {
		rows[i].Index = i + 1
		if len(rows[i].Anomalies) > 0 {
			logging.Challenge(rows[i].Name).WithField("anomalies", strings.Join(rows[i].Anomalies, "; ")).Debug("registry drift")
		}
	}

	return &Snapshot{Rows: rows}, nil
}

func anomalies(row Row, byPort map[int][]string) []string {
	var out []string

	switch {
	case row.Entry == nil:
		out = append(out, "container has no registry entry")
	case row.Container == nil:
		if row.Entry.Mode == registry.ModeAuto {
			out = append(out, "registered port has no container")
		}
	case row.Container.HostPort != 0 && row.Container.HostPort != row.Entry.Port:
		out = append(out, fmt.Sprintf("published on %d but registered on %d", row.Container.HostPort, row.Entry.Port))
	}

	if row.Entry != nil {
		for _, other := range byPort[row.Entry.Port] {
			if other != row.Name {
				out = append(out, fmt.Sprintf("port %d also bound to %s", row.Entry.Port, other))
			}
		}
	}

	return out
}
