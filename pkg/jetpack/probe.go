package jetpack

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tristate is a boolean that can also be not yet known.
type Tristate int8

const (
	// Unknown means the value was never reported.
	Unknown Tristate = iota
	// True means the value was reported as true.
	True
	// False means the value was reported as false.
	False
)

// TristateOf converts a reported boolean.
func TristateOf(value bool) Tristate {
	if value {
		return True
	}

	return False
}

// IsTrue reports whether the value is known and true.
func (t Tristate) IsTrue() bool {
	return t == True
}

// IsFalse reports whether the value is known and false.
func (t Tristate) IsFalse() bool {
	return t == False
}

// Known reports whether the value was reported at all.
func (t Tristate) Known() bool {
	return t == True || t == False
}

// String returns "true", "false", or "unknown".
func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes Unknown as null.
func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false, and null.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*t = True
	case "false":
		*t = False
	case "null":
		*t = Unknown
	default:
		var value bool
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("unmarshal tristate %s: %w", data, err)
		}
		*t = TristateOf(value)
	}

	return nil
}

// SiteProbe is the remote site-info report for one URL.
type SiteProbe struct {
	Exists             Tristate `json:"exists,omitempty"`
	IsWordPress        Tristate `json:"isWordPress,omitempty"`
	HasJetpack         Tristate `json:"hasJetpack,omitempty"`
	IsJetpackActive    Tristate `json:"isJetpackActive,omitempty"`
	IsJetpackConnected Tristate `json:"isJetpackConnected,omitempty"`
	UserOwnsSite       Tristate `json:"userOwnsSite,omitempty"`
	IsWordPressDotCom  Tristate `json:"isWordPressDotCom,omitempty"`
	JetpackVersion     string   `json:"jetpackVersion,omitempty"`
}

// OwnedSiteProbe is the probe reported for a URL already on the requester's site list.
func OwnedSiteProbe() SiteProbe {
	return SiteProbe{
		Exists:             True,
		IsWordPress:        True,
		HasJetpack:         True,
		IsJetpackActive:    True,
		IsJetpackConnected: True,
		IsWordPressDotCom:  False,
		UserOwnsSite:       True,
	}
}

// SiteRecord is the session-scoped probe state for the URL being connected.
type SiteRecord struct {
	// URL is the cleaned URL the probe was requested for.
	URL string `json:"url"`
	// Probe is nil until a probe result arrives.
	Probe *SiteProbe `json:"data,omitempty"`
	// IsFetching is true while the probe is in flight.
	IsFetching bool `json:"isFetching"`
	// IsFetched is true once a probe result or error arrived.
	IsFetched bool `json:"isFetched"`
	// IsDismissed is true after the user dismissed the status notice.
	IsDismissed bool `json:"isDismissed"`
	// InstallConfirmedByUser records the manual install answer.
	InstallConfirmedByUser Tristate `json:"installConfirmedByUser,omitempty"`
	// FromRequesterSites marks probes synthesized from the requester's own site list.
	FromRequesterSites bool `json:"fromRequesterSites,omitempty"`
	// Error is the probe failure text, when any.
	Error string `json:"error,omitempty"`
}

// Clone returns a deep copy.
func (r SiteRecord) Clone() SiteRecord {
	cloned := r
	if r.Probe != nil {
		probe := *r.Probe
		cloned.Probe = &probe
	}

	return cloned
}
