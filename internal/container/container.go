package container

import (
	"context"
	"time"

	"go.uber.org/zap"

	"callsync-core/internal/config"
	"callsync-core/internal/domain"
	"callsync-core/internal/service/callsession"
	"callsync-core/internal/service/navigation"
	"callsync-core/internal/service/reconnect"
	"callsync-core/internal/transport/ws"
	"callsync-core/pkg/initcoord"
	"callsync-core/pkg/logger"
)

// Screen identifiers the navigation coordinator pins during a call
const (
	ScreenAudioCall = "audio_call"
	ScreenVideoCall = "video_call"
)

// reconnectSessionID names the signaling link's recovery session. The device
// holds one signaling connection, so one logical session suffices.
const reconnectSessionID = "signaling"

// KV is the durable key-value storage every coordinator persists through
type KV interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// Deps are the externally-provided collaborators. Store, Navigator and
// Presenter are required; the rest may be nil.
type Deps struct {
	Store     KV
	Navigator navigation.Navigator
	Presenter callsession.Presenter
	Monitor   reconnect.NetworkMonitor
	KeepAlive callsession.KeepAlive
	History   callsession.HistoryRecorder
}

// Container wires the call-session coordinators together: answered calls
// register a navigation session, terminal calls tear it down, and transport
// drops hand the link to the reconnection controller.
type Container struct {
	Config *config.Config

	Calls      *callsession.Service
	Navigation *navigation.Coordinator
	NavState   *navigation.StateKeeper
	Init       *initcoord.Coordinator
	Reconnect  *reconnect.Controller
	Transport  *ws.Transport
}

// New builds the full service graph from configuration
func New(cfg *config.Config, deps Deps) *Container {
	c := &Container{Config: cfg}

	c.Calls = callsession.NewService(
		callsession.Config{InviteTTL: cfg.Call.InviteTTL},
		deps.Presenter, deps.Store, deps.KeepAlive, deps.History,
	)

	c.Navigation = navigation.NewCoordinator(
		navigation.Config{MaxBackgroundDuration: cfg.Call.MaxBackgroundDuration},
		deps.Store, deps.Navigator,
	)

	c.NavState = navigation.NewStateKeeper(
		navigation.StateKeeperConfig{
			DefaultTTL:   cfg.Call.NavStateTTL,
			AuthRouteTTL: cfg.Call.AuthRouteTTL,
		},
		deps.Store,
	)

	c.Init = initcoord.New(cfg.Init.Timeout, cfg.Init.Cooldown)
	c.Reconnect = reconnect.NewController(deps.Monitor)

	if cfg.Signaling.URL != "" {
		c.Transport = ws.NewTransport(ws.Config{
			URL:          cfg.Signaling.URL,
			PingInterval: cfg.Signaling.PingInterval,
		}, c.onTransportLost)
	}

	c.wireEvents()
	return c
}

// wireEvents connects call lifecycle transitions to navigation persistence
func (c *Container) wireEvents() {
	events := c.Calls.Events()

	events.OnCallAnswered(func(session *domain.CallSession) {
		input := navigation.StartSessionInput{
			CallID:                  session.CallID,
			CallKind:                session.CallKind,
			TargetScreenID:          ScreenForKind(session.CallKind),
			CounterpartyDisplayName: session.CallerDisplayName,
			CounterpartyRole:        session.CallerRole,
			RoomReference:           session.RoomReference,
		}
		if err := c.Navigation.StartSession(context.Background(), input); err != nil {
			logger.Error("failed to register navigation session",
				zap.String("call_id", session.CallID.String()),
				zap.Error(err))
		}
	})

	events.OnSessionTerminal(func(session *domain.CallSession) {
		if err := c.Navigation.EndSession(context.Background()); err != nil {
			logger.Error("failed to end navigation session",
				zap.String("call_id", session.CallID.String()),
				zap.Error(err))
		}
	})
}

// ConnectTransport establishes the signaling connection through the
// initialization coordinator so concurrent callers share one dial
func (c *Container) ConnectTransport(ctx context.Context) error {
	if c.Transport == nil {
		return nil
	}
	_, err := c.Init.Acquire(ctx, "signaling-transport", func(initCtx context.Context) (any, error) {
		if err := c.Transport.Connect(initCtx); err != nil {
			return nil, err
		}
		return c.Transport, nil
	}, initcoord.Options{MaxRetries: 2})
	return err
}

// onTransportLost hands a dropped signaling link to the reconnection
// controller. A successful recovery moves a connecting session to active; an
// exhausted one fails the call.
func (c *Container) onTransportLost(reason string) {
	if c.Transport == nil {
		return
	}
	logger.Warn("signaling transport lost", zap.String("reason", reason))

	cfg := domain.ReconnectConfig{
		MaxAttempts:                    c.Config.Reconnect.MaxAttempts,
		BaseDelay:                      c.Config.Reconnect.BaseDelay,
		MaxDelay:                       c.Config.Reconnect.MaxDelay,
		BackoffMultiplier:              c.Config.Reconnect.BackoffMultiplier,
		JitterRatio:                    c.Config.Reconnect.JitterRatio,
		EnableNetworkAwareReconnection: c.Config.Reconnect.NetworkAware,
		MinNetworkQuality:              domain.NetworkQuality(c.Config.Reconnect.MinQuality),
	}

	c.Reconnect.Start(reconnectSessionID, c.Transport, cfg, reconnect.Callbacks{
		OnSucceeded: func(sessionID string, attempts int, total time.Duration) {
			session := c.Calls.ActiveSession()
			if session == nil {
				return
			}
			if err := c.Calls.MarkConnected(context.Background(), session.CallID); err != nil {
				logger.Error("failed to mark session connected after recovery",
					zap.String("call_id", session.CallID.String()),
					zap.Error(err))
			}
		},
		OnFailed: func(sessionID string, attempts int) {
			session := c.Calls.ActiveSession()
			if session == nil {
				return
			}
			if err := c.Calls.MarkFailed(context.Background(), session.CallID, "connection lost"); err != nil {
				logger.Error("failed to fail session after exhausted recovery",
					zap.String("call_id", session.CallID.String()),
					zap.Error(err))
			}
		},
	})
}

// ScreenForKind maps a call kind to the screen the call owns
func ScreenForKind(kind domain.CallKind) string {
	if kind == domain.CallKindVideo {
		return ScreenVideoCall
	}
	return ScreenAudioCall
}

// Shutdown stops background work and records a clean exit
func (c *Container) Shutdown(ctx context.Context) {
	c.Reconnect.Stop(reconnectSessionID)
	c.Init.EmergencyCleanupAll()
	if c.Transport != nil {
		if err := c.Transport.Leave(ctx); err != nil {
			logger.Warn("failed to leave signaling room on shutdown", zap.Error(err))
		}
	}
	if err := c.NavState.MarkCleanExit(ctx); err != nil {
		logger.Warn("failed to mark clean exit", zap.Error(err))
	}
}
