package registry

// Store persists the whole registry document. Save replaces the document
// atomically: after a failed Save the previous document is still readable.
type Store interface {
	Load() (map[string]Entry, error)
	Save(entries map[string]Entry) error
	Close() error
}
