package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallState is the lifecycle state of a call session.
// Keep values stable because they are persisted and part of the event API.
type CallState string

const (
	CallStateRinging    CallState = "ringing"
	CallStateAnswered   CallState = "answered"
	CallStateConnecting CallState = "connecting"
	CallStateActive     CallState = "active"
	CallStateEnded      CallState = "ended"
	CallStateDeclined   CallState = "declined"
	CallStateMissed     CallState = "missed"
	CallStateFailed     CallState = "failed"
)

// IsTerminal reports whether no further transition is possible from s
func (s CallState) IsTerminal() bool {
	switch s {
	case CallStateEnded, CallStateDeclined, CallStateMissed, CallStateFailed:
		return true
	}
	return false
}

// CallKind represents type of call
type CallKind string

const (
	CallKindAudio CallKind = "audio"
	CallKindVideo CallKind = "video"
)

// Valid reports whether k is a known call kind
func (k CallKind) Valid() bool {
	return k == CallKindAudio || k == CallKindVideo
}

// CallerRole identifies which side of the two-party relationship a caller is on
type CallerRole string

const (
	CallerRoleCustomer   CallerRole = "customer"
	CallerRoleSpecialist CallerRole = "specialist"
)

// CallSession represents one call attempt and its current lifecycle state
type CallSession struct {
	CallID            uuid.UUID         `json:"call_id"`
	CallerID          string            `json:"caller_id"`
	CallerDisplayName string            `json:"caller_display_name"`
	CallerRole        CallerRole        `json:"caller_role"`
	CallKind          CallKind          `json:"call_kind"`
	RoomReference     string            `json:"room_reference"`
	State             CallState         `json:"state"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	AnsweredAt        *time.Time        `json:"answered_at,omitempty"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
	EndReason         string            `json:"end_reason,omitempty"`
}

// InvitePayload is the call-invite shape delivered by the push transport.
// Metadata may arrive as a structured object or as a string requiring parse.
type InvitePayload struct {
	CallID            string          `json:"call_id,omitempty"`
	CallerID          string          `json:"caller_id"`
	CallerDisplayName string          `json:"caller_display_name"`
	CallerRole        CallerRole      `json:"caller_role"`
	CallKind          CallKind        `json:"call_kind"`
	RoomReference     string          `json:"room_reference"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// Validate checks the required invite fields
func (p *InvitePayload) Validate() error {
	if p.CallerID == "" {
		return fmt.Errorf("caller_id is required")
	}
	if !p.CallKind.Valid() {
		return fmt.Errorf("call_kind %q is not valid", p.CallKind)
	}
	if p.RoomReference == "" {
		return fmt.Errorf("room_reference is required")
	}
	return nil
}

// ParsedMetadata decodes the metadata field, tolerating both a JSON object
// and a string-encoded JSON object. Parse failure yields empty metadata,
// never an error.
func (p *InvitePayload) ParsedMetadata() map[string]string {
	if len(p.Metadata) == 0 {
		return map[string]string{}
	}

	meta := map[string]string{}
	if err := json.Unmarshal(p.Metadata, &meta); err == nil {
		return meta
	}

	// Some push transports double-encode the metadata as a string
	var raw string
	if err := json.Unmarshal(p.Metadata, &raw); err == nil {
		inner := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &inner); err == nil {
			return inner
		}
	}

	return map[string]string{}
}
