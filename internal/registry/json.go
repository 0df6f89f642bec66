package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/moby/sys/atomicwriter"

	"github.com/thatjpcsguy/cappit/internal/errors"
)

// JSONStore keeps the registry in a single JSON document, challs.json by default
type JSONStore struct {
	path string
}

// NewJSONStore opens the document at path, creating an empty one if absent
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	s := &JSONStore{path: path}

	if err := s.create(); err != nil {
		return nil, err
	}

	return s, nil
}

// create writes an empty document only if none exists. O_EXCL keeps a
// concurrent first Save from being overwritten; Load reads a still empty
// file as an empty registry.
func (s *JSONStore) create() error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	if _, err := f.Write([]byte("{}\n")); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return f.Close()
}

// Path returns the document path
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the whole document
func (s *JSONStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	entries, err := decodeDocument(data)
	if err != nil {
		return nil, errors.StorageCorrupt(s.path, err)
	}

	return entries, nil
}

// Save replaces the document atomically
func (s *JSONStore) Save(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	data = append(data, '\n')

	if err := atomicwriter.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}

	return nil
}

// Close is a no-op; the document is not held open
func (s *JSONStore) Close() error {
	return nil
}

// decodeDocument accepts the current format ({"name": {"port": N, "mode": M}})
// and the legacy one ({"name": "31000"} or {"name": 31000}), including a
// document that is the JSON string "{}".
func decodeDocument(data []byte) (map[string]Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]Entry{}, nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, err
		}
		data = bytes.TrimSpace([]byte(inner))
		if len(data) == 0 || data[0] == '"' {
			return nil, fmt.Errorf("expected an object, got a string")
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	entries := make(map[string]Entry, len(raw))
	for name, value := range raw {
		entry, err := decodeEntry(value)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		entry.Name = name
		entries[name] = entry
	}

	return entries, nil
}

func decodeEntry(value json.RawMessage) (Entry, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return Entry{}, fmt.Errorf("empty value")
	}

	var entry Entry
	switch value[0] {
	case '{':
		if err := json.Unmarshal(value, &entry); err != nil {
			return Entry{}, err
		}
		if entry.Mode == "" {
			entry.Mode = ModeAuto
		}
	case '"':
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return Entry{}, err
		}
		p, err := strconv.Atoi(s)
		if err != nil {
			return Entry{}, fmt.Errorf("port %q is not a number", s)
		}
		entry = Entry{Port: p, Mode: ModeAuto}
	default:
		var p int
		if err := json.Unmarshal(value, &p); err != nil {
			return Entry{}, err
		}
		entry = Entry{Port: p, Mode: ModeAuto}
	}

	if entry.Port <= 0 || entry.Port > 65535 {
		return Entry{}, fmt.Errorf("port %d out of range", entry.Port)
	}
	if !entry.Mode.Valid() {
		return Entry{}, fmt.Errorf("unknown mode %q", entry.Mode)
	}

	return entry, nil
}
