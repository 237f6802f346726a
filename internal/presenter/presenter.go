package presenter

import (
	"context"

	"github.com/google/uuid"

	"callsync-core/internal/domain"
)

// Presenter displays an incoming call through one platform mechanism
type Presenter interface {
	Name() string
	Present(ctx context.Context, session *domain.CallSession) error
	Dismiss(ctx context.Context, callID uuid.UUID) error
}

// Funcs adapts caller-supplied functions into a Presenter. It is the bridge
// to an actual platform call UI (native incoming-call surface or in-app
// full-screen presentation).
type Funcs struct {
	PresenterName string
	PresentFunc   func(ctx context.Context, session *domain.CallSession) error
	DismissFunc   func(ctx context.Context, callID uuid.UUID) error
}

// Name implements Presenter
func (f *Funcs) Name() string {
	return f.PresenterName
}

// Present implements Presenter
func (f *Funcs) Present(ctx context.Context, session *domain.CallSession) error {
	if f.PresentFunc == nil {
		return nil
	}
	return f.PresentFunc(ctx, session)
}

// Dismiss implements Presenter
func (f *Funcs) Dismiss(ctx context.Context, callID uuid.UUID) error {
	if f.DismissFunc == nil {
		return nil
	}
	return f.DismissFunc(ctx, callID)
}
