package domain

import (
	"time"

	"github.com/google/uuid"
)

// NavigationSnapshot is the durable record of which screen context the
// active call owns. It exists if and only if a call session is non-terminal.
type NavigationSnapshot struct {
	IsInCall                 bool              `json:"isInCall"`
	CallID                   uuid.UUID         `json:"callId"`
	CallKind                 CallKind          `json:"callKind"`
	CurrentScreen            string            `json:"currentScreen"`
	ScreenParams             map[string]string `json:"screenParams,omitempty"`
	CounterpartyDisplayName  string            `json:"counterpartyDisplayName"`
	CounterpartyRole         CallerRole        `json:"counterpartyRole"`
	RoomReference            string            `json:"roomReference,omitempty"`
	CallStartTime            int64             `json:"callStartTime"`                      // epoch-ms
	BackgroundTransitionTime *int64            `json:"backgroundTransitionTime,omitempty"` // epoch-ms
	PersistedAt              int64             `json:"persistedAt"`                        // epoch-ms
}

// ExpiryBase returns the instant the background-duration clock runs from:
// the last background transition when one was recorded, else call start.
func (s *NavigationSnapshot) ExpiryBase() time.Time {
	if s.BackgroundTransitionTime != nil {
		return time.UnixMilli(*s.BackgroundTransitionTime)
	}
	return time.UnixMilli(s.CallStartTime)
}

// NavStateVersion is the schema version of the persisted navigation-state record
const NavStateVersion = "1.0"

// NavStateRecord is the persisted general screen-navigation state, a concern
// separate from the call snapshot: its own storage key, its own expiry clock.
type NavStateRecord struct {
	State       string `json:"state"` // opaque screen-stack serialization
	SavedAt     int64  `json:"savedAt"` // epoch-ms
	Version     string `json:"version"`
	IsAuthRoute bool   `json:"isAuthRoute"`
}

// RestoreResult is the outcome of a navigation restore attempt
type RestoreResult struct {
	Success               bool   `json:"success"`
	RestoredToCallScreen  bool   `json:"restored_to_call_screen"`
	Reason                string `json:"reason,omitempty"`
}
