// Package registry is the host application's per-serial bookkeeping: the
// cached info shown for each controller and the session driving it.
package registry

import (
	"cmp"
	"slices"
	"sync"

	"joydance-bridge/internal/controller"
	"joydance-bridge/internal/pairing"
)

// Info is a controller as the UI sees it.
type Info struct {
	VendorID      uint16 `json:"vendor_id"`
	ProductID     uint16 `json:"product_id"`
	Serial        string `json:"serial"`
	Name          string `json:"name"`
	IsLeft        bool   `json:"is_left"`
	State         int    `json:"state"`
	PairingCode   string `json:"pairing_code"`
	RumbleEnabled bool   `json:"rumble_enabled"`

	PlayerName        *string `json:"player_name,omitempty"`
	PlayerID          *int    `json:"player_id,omitempty"`
	PlayerColor       []int   `json:"player_color,omitempty"`
	PlayerImage       *string `json:"player_image,omitempty"`
	SkinImage         *string `json:"skin_image,omitempty"`
	AdditionalMessage *string `json:"additional_message,omitempty"`
}

func infoFromDevice(d controller.DeviceInfo) Info {
	return Info{
		VendorID:      d.VendorID,
		ProductID:     d.ProductID,
		Serial:        d.Serial,
		Name:          d.Name,
		IsLeft:        d.IsLeft,
		State:         int(pairing.StateIdle),
		RumbleEnabled: true,
	}
}

// Apply merges a partial update keyed by JSON field name. Unknown keys and
// values of the wrong type are ignored.
func (in *Info) Apply(u map[string]any) {
	for k, v := range u {
		switch k {
		case "state":
			if n, ok := v.(int); ok {
				in.State = n
			}
		case "pairing_code":
			if s, ok := v.(string); ok {
				in.PairingCode = s
			}
		case "rumble_enabled":
			if b, ok := v.(bool); ok {
				in.RumbleEnabled = b
			}
		case "player_name":
			in.PlayerName, _ = v.(*string)
		case "player_id":
			in.PlayerID, _ = v.(*int)
		case "player_color":
			in.PlayerColor, _ = v.([]int)
		case "player_image":
			in.PlayerImage, _ = v.(*string)
		case "skin_image":
			in.SkinImage, _ = v.(*string)
		case "additional_message":
			in.AdditionalMessage, _ = v.(*string)
		}
	}
}

// Session is what the registry needs from a running pairing session.
type Session interface {
	Serial() string
	Stop()
	Wait()
	SetRumbleEnabled(enabled bool)
	SendSearchText(text string) bool
}

// Registry is safe for concurrent use. Entries are only created and removed
// by the owner of the controller lifecycle.
type Registry struct {
	mu       sync.RWMutex
	infos    map[string]*Info
	order    []string
	sessions map[string]Session
}

func New() *Registry {
	return &Registry{
		infos:    map[string]*Info{},
		sessions: map[string]Session{},
	}
}

// Observe records a discovered controller. An already known serial keeps
// its current state.
func (r *Registry) Observe(d controller.DeviceInfo) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.infos[d.Serial]; ok {
		return *in
	}
	in := infoFromDevice(d)
	r.infos[d.Serial] = &in
	r.order = append(r.order, d.Serial)
	return in
}

func (r *Registry) Info(serial string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.infos[serial]
	if !ok {
		return Info{}, false
	}
	return *in, true
}

// Apply merges u into the serial's info and returns the result.
func (r *Registry) Apply(serial string, u map[string]any) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.infos[serial]
	if !ok {
		return Info{}, false
	}
	in.Apply(u)
	return *in, true
}

// List returns the given serials' infos (all known ones when serials is
// nil), sorted by name then serial.
func (r *Registry) List(serials []string) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if serials == nil {
		serials = r.order
	}
	out := make([]Info, 0, len(serials))
	for _, s := range serials {
		if in, ok := r.infos[s]; ok {
			out = append(out, *in)
		}
	}
	slices.SortFunc(out, func(a, b Info) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Serial, b.Serial))
	})
	return out
}

// SetSession registers s for its serial and returns the session it
// replaced, if any.
func (r *Registry) SetSession(s Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.Serial()]
	r.sessions[s.Serial()] = s
	return prev
}

func (r *Registry) Session(serial string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[serial]
	return s, ok
}

// RemoveSession drops the serial's session only if it is still s.
func (r *Registry) RemoveSession(s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.Serial()]; !ok || cur != s {
		return false
	}
	delete(r.sessions, s.Serial())
	return true
}

// FirstSession returns the session of the earliest discovered controller
// that has one.
func (r *Registry) FirstSession() (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, serial := range r.order {
		if s, ok := r.sessions[serial]; ok {
			return s, true
		}
	}
	return nil, false
}

func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, serial := range r.order {
		if s, ok := r.sessions[serial]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
