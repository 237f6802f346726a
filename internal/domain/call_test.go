package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestInvitePayloadValidate tests the required-field checks
func TestInvitePayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		invite  InvitePayload
		wantErr bool
	}{
		{
			name: "valid audio invite",
			invite: InvitePayload{
				CallerID:      "caller-1",
				CallKind:      CallKindAudio,
				RoomReference: "room-1",
			},
		},
		{
			name: "missing caller id",
			invite: InvitePayload{
				CallKind:      CallKindVideo,
				RoomReference: "room-1",
			},
			wantErr: true,
		},
		{
			name: "invalid call kind",
			invite: InvitePayload{
				CallerID:      "caller-1",
				CallKind:      CallKind("screen_share"),
				RoomReference: "room-1",
			},
			wantErr: true,
		},
		{
			name: "missing room reference",
			invite: InvitePayload{
				CallerID: "caller-1",
				CallKind: CallKindAudio,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.invite.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestParsedMetadata tests the tolerant metadata decoding: object,
// string-encoded object, and garbage
func TestParsedMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		want     map[string]string
	}{
		{
			name:     "structured object",
			metadata: `{"roomId":"r-1","priority":"high"}`,
			want:     map[string]string{"roomId": "r-1", "priority": "high"},
		},
		{
			name:     "string-encoded object",
			metadata: `"{\"roomId\":\"r-1\"}"`,
			want:     map[string]string{"roomId": "r-1"},
		},
		{
			name:     "empty",
			metadata: "",
			want:     map[string]string{},
		},
		{
			name:     "garbage yields empty, never an error",
			metadata: `"not json at all"`,
			want:     map[string]string{},
		},
		{
			name:     "wrong shape yields empty",
			metadata: `[1,2,3]`,
			want:     map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invite := InvitePayload{Metadata: json.RawMessage(tt.metadata)}
			assert.Equal(t, tt.want, invite.ParsedMetadata())
		})
	}
}

// TestCallStateIsTerminal tests the terminal classification
func TestCallStateIsTerminal(t *testing.T) {
	terminal := []CallState{CallStateEnded, CallStateDeclined, CallStateMissed, CallStateFailed}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	live := []CallState{CallStateRinging, CallStateAnswered, CallStateConnecting, CallStateActive}
	for _, s := range live {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

// TestExpiryBasePrefersBackgroundTransition tests the clock selection
func TestExpiryBasePrefersBackgroundTransition(t *testing.T) {
	started := time.Now().Add(-time.Hour).UnixMilli()
	backgrounded := time.Now().Add(-time.Minute).UnixMilli()

	snapshot := NavigationSnapshot{CallStartTime: started}
	assert.Equal(t, time.UnixMilli(started), snapshot.ExpiryBase())

	snapshot.BackgroundTransitionTime = &backgrounded
	assert.Equal(t, time.UnixMilli(backgrounded), snapshot.ExpiryBase())
}
