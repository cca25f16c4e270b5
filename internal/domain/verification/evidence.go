package verification

import "time"

// Trace sample caps. A compliant collector truncates client-side; the
// service rejects anything larger at the boundary, so stored bundles never
// exceed these.
const (
	MaxPointerSamples   = 200
	MaxKeystrokeSamples = 40
)

// BehavioralTrace holds the rhythmic signal captured by the collector:
// inter-event intervals in milliseconds for two independent channels.
// Raw coordinates and key identities are never collected.
type BehavioralTrace struct {
	Typing   []int  `json:"typing"`
	Pointer  []int  `json:"mouse"`
	Timezone string `json:"timezone"`
}

// Evidence is one immutable behavioral/environmental sample tied to a
// token. Network origin fields are attached server-side, never
// client-supplied.
type Evidence struct {
	ID          string          `json:"id"`
	Token       string          `json:"token"`
	Fingerprint string          `json:"fingerprint"` // opaque JSON blob from the client
	Trace       BehavioralTrace `json:"trace"`
	Honeypot    bool            `json:"honeypot"`
	IP          string          `json:"ip"`
	NetBlock    string          `json:"netBlock"`
	UserAgent   string          `json:"userAgent"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// ValidateBounds checks the trace against the sample caps.
func (t *BehavioralTrace) ValidateBounds() error {
	if len(t.Pointer) > MaxPointerSamples {
		return ErrMalformedEvidence
	}
	if len(t.Typing) > MaxKeystrokeSamples {
		return ErrMalformedEvidence
	}
	return nil
}

// Profile is an aggregated per-identity cadence signature derived from
// accepted evidence, used for longitudinal comparison across accounts.
type Profile struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Typing    []int     `json:"typing"`
	Pointer   []int     `json:"mouse"`
	CreatedAt time.Time `json:"createdAt"`
}

// BuildProfile summarizes an evidence bundle into a cadence profile for
// the given identity. It is a pure function of its inputs so stored
// profiles can be replayed in tests.
func BuildProfile(identity string, ev *Evidence) *Profile {
	p := &Profile{Identity: identity}
	p.Typing = append(p.Typing, ev.Trace.Typing...)
	p.Pointer = append(p.Pointer, ev.Trace.Pointer...)
	if len(p.Typing) > MaxKeystrokeSamples {
		p.Typing = p.Typing[:MaxKeystrokeSamples]
	}
	if len(p.Pointer) > MaxPointerSamples {
		p.Pointer = p.Pointer[:MaxPointerSamples]
	}
	return p
}
