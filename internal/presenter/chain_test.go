package presenter

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsync-core/internal/domain"
	"callsync-core/pkg/errors"
	"callsync-core/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	m.Run()
}

// countingPresenter records Present and Dismiss calls
type countingPresenter struct {
	name      string
	fail      bool
	presents  int
	dismisses int
}

func (p *countingPresenter) Name() string { return p.name }

func (p *countingPresenter) Present(ctx context.Context, session *domain.CallSession) error {
	p.presents++
	if p.fail {
		return fmt.Errorf("%s unavailable", p.name)
	}
	return nil
}

func (p *countingPresenter) Dismiss(ctx context.Context, callID uuid.UUID) error {
	p.dismisses++
	return nil
}

func testSession() *domain.CallSession {
	return &domain.CallSession{
		CallID:   uuid.New(),
		CallKind: domain.CallKindAudio,
		State:    domain.CallStateRinging,
	}
}

// TestChainPrefersFirstPresenter tests that later mechanisms are untouched
// when the preferred one succeeds
func TestChainPrefersFirstPresenter(t *testing.T) {
	native := &countingPresenter{name: "native"}
	inApp := &countingPresenter{name: "in_app"}
	chain := NewChain(native, inApp)

	require.NoError(t, chain.Present(context.Background(), testSession()))

	assert.Equal(t, 1, native.presents)
	assert.Equal(t, 0, inApp.presents)
}

// TestChainFallsBackOnFailure tests the fallback walk
func TestChainFallsBackOnFailure(t *testing.T) {
	native := &countingPresenter{name: "native", fail: true}
	inApp := &countingPresenter{name: "in_app", fail: true}
	notification := &countingPresenter{name: "notification"}
	chain := NewChain(native, inApp, notification)

	require.NoError(t, chain.Present(context.Background(), testSession()))

	assert.Equal(t, 1, native.presents)
	assert.Equal(t, 1, inApp.presents)
	assert.Equal(t, 1, notification.presents)
}

// TestChainAllFail tests the exhausted chain
func TestChainAllFail(t *testing.T) {
	native := &countingPresenter{name: "native", fail: true}
	chain := NewChain(native)

	err := chain.Present(context.Background(), testSession())

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePresentationFailed))
}

// TestDismissRoutesToClaimingPresenter tests that the mechanism that showed
// the call is the one that dismisses it
func TestDismissRoutesToClaimingPresenter(t *testing.T) {
	native := &countingPresenter{name: "native", fail: true}
	inApp := &countingPresenter{name: "in_app"}
	chain := NewChain(native, inApp)

	session := testSession()
	require.NoError(t, chain.Present(context.Background(), session))
	require.NoError(t, chain.Dismiss(context.Background(), session.CallID))

	assert.Equal(t, 0, native.dismisses)
	assert.Equal(t, 1, inApp.dismisses)

	// A second dismiss finds no claim and is a no-op
	require.NoError(t, chain.Dismiss(context.Background(), session.CallID))
	assert.Equal(t, 1, inApp.dismisses)
}

// TestDismissUnknownCall tests dismissal of a call nothing presented
func TestDismissUnknownCall(t *testing.T) {
	chain := NewChain(&countingPresenter{name: "native"})

	assert.NoError(t, chain.Dismiss(context.Background(), uuid.New()))
}
