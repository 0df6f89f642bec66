package registry

import "time"

// Mode records how a challenge's port was chosen
type Mode string

const (
	// ModeAuto ports were chosen by the allocator for a container that started
	ModeAuto Mode = "auto"
	// ModeManual ports were pinned by an operator and may have no container
	ModeManual Mode = "manual"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeManual
}

// Entry is a challenge's port reservation
type Entry struct {
	Name      string    `json:"-"`
	Port      int       `json:"port"`
	Mode      Mode      `json:"mode"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}
