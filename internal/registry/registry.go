package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// Storage backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Registry manages challenge port reservations. Every operation reloads the
// document, applies its change and saves it back while holding the lock
// file, so concurrent cappit processes never lose each other's updates.
type Registry struct {
	store Store
	lock  *flock.Flock
	now   func() time.Time
}

// Open creates or opens the registry at path using the named backend
func Open(backend, path string) (*Registry, error) {
	var (
		store Store
		err   error
	)

	switch backend {
	case BackendJSON, "":
		store, err = NewJSONStore(path)
	case BackendSQLite:
		store, err = NewSQLiteStore(path)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown storage backend %q", backend), nil)
	}
	if err != nil {
		return nil, err
	}

	r, err := New(store, path+".lock")
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return r, nil
}

// New wraps a store. lockPath may be empty to disable inter-process locking.
// The document is read once so that a corrupt registry fails here rather
// than part way through an operation.
func New(store Store, lockPath string) (*Registry, error) {
	r := &Registry{store: store, now: time.Now}
	if lockPath != "" {
		r.lock = flock.New(lockPath)
	}

	if err := r.view(func(map[string]Entry) error { return nil }); err != nil {
		return nil, err
	}

	return r, nil
}

// Close closes the underlying store
func (r *Registry) Close() error {
	return r.store.Close()
}

func (r *Registry) locked(fn func() error) error {
	if r.lock == nil {
		return fn()
	}

	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock registry: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()

	return fn()
}

// view runs fn over the current document without saving
func (r *Registry) view(fn func(entries map[string]Entry) error) error {
	return r.locked(func() error {
		entries, err := r.store.Load()
		if err != nil {
			return err
		}
		return fn(entries)
	})
}

// update runs fn over the current document and saves it if fn succeeds
func (r *Registry) update(fn func(entries map[string]Entry) error) error {
	return r.locked(func() error {
		entries, err := r.store.Load()
		if err != nil {
			return err
		}
		if err := fn(entries); err != nil {
			return err
		}
		if err := r.store.Save(entries); err != nil {
			return fmt.Errorf("failed to save registry: %w", err)
		}
		return nil
	})
}

// Get returns the entry for name
func (r *Registry) Get(name string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)

	err := r.view(func(entries map[string]Entry) error {
		entry, found = entries[name]
		return nil
	})

	return entry, found, err
}

// Upsert inserts or overwrites the entry for name
func (r *Registry) Upsert(name string, port int, mode Mode) error {
	if name == "" {
		return errors.InvalidName(name, "name cannot be empty")
	}
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}

	err := r.update(func(entries map[string]Entry) error {
		entries[name] = Entry{Name: name, Port: port, Mode: mode, UpdatedAt: r.now().UTC()}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Challenge(name).WithFields(logrus.Fields{"port": port, "mode": mode}).Info("port bound")
	return nil
}

// Remove deletes the entry for name
func (r *Registry) Remove(name string) error {
	var port int

	err := r.update(func(entries map[string]Entry) error {
		entry, ok := entries[name]
		if !ok {
			return errors.EntryNotFound(name)
		}
		port = entry.Port
		delete(entries, name)
		return nil
	})
	if err != nil {
		return err
	}

	logging.Challenge(name).WithField("port", port).Info("port unbound")
	return nil
}

// Clear removes every entry
func (r *Registry) Clear() error {
	err := r.update(func(entries map[string]Entry) error {
		clear(entries)
		return nil
	})
	if err != nil {
		return err
	}

	logging.Log.Info("registry cleared")
	return nil
}

// ListPorts returns the set of ports owned by any entry
func (r *Registry) ListPorts() (map[int]struct{}, error) {
	ports := make(map[int]struct{})

	err := r.view(func(entries map[string]Entry) error {
		for _, e := range entries {
			ports[e.Port] = struct{}{}
		}
		return nil
	})

	return ports, err
}

// Entries returns all entries ordered by port, then name
func (r *Registry) Entries() ([]Entry, error) {
	var list []Entry

	err := r.view(func(entries map[string]Entry) error {
		list = make([]Entry, 0, len(entries))
		for name, e := range entries {
			e.Name = name
			list = append(list, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Port != list[j].Port {
			return list[i].Port < list[j].Port
		}
		return list[i].Name < list[j].Name
	})

	return list, nil
}
