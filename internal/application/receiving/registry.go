package receiving

import (
	"context"
	"sync"
	"time"

	"github.com/erp/receiving/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ControllerFactory builds the controller for a new (tenant, device) session
type ControllerFactory func(tenantID uuid.UUID, deviceID string) *Controller

type sessionKey struct {
	tenantID uuid.UUID
	deviceID string
}

// SessionRegistry keeps one controller per tenant and device
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Controller
	factory  ControllerFactory
	metrics  *telemetry.ReceivingMetrics
	logger   *zap.Logger
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry(factory ControllerFactory, metrics *telemetry.ReceivingMetrics, logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		sessions: make(map[sessionKey]*Controller),
		factory:  factory,
		metrics:  metrics,
		logger:   logger,
	}
}

// Get returns the device's controller, creating it on first use
func (r *SessionRegistry) Get(ctx context.Context, tenantID uuid.UUID, deviceID string) *Controller {
	key := sessionKey{tenantID: tenantID, deviceID: deviceID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.sessions[key]; ok {
		return c
	}
	c := r.factory(tenantID, deviceID)
	r.sessions[key] = c
	r.metrics.SessionOpened(ctx)
	r.logger.Info("receiving session opened",
		zap.String("tenant_id", tenantID.String()),
		zap.String("device_id", deviceID),
		zap.String("session_id", c.SessionID().String()),
	)
	return c
}

// Lookup returns the device's controller if one exists
func (r *SessionRegistry) Lookup(tenantID uuid.UUID, deviceID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[sessionKey{tenantID: tenantID, deviceID: deviceID}]
	return c, ok
}

// Remove closes and forgets the device's controller. It returns false if
// there was none.
func (r *SessionRegistry) Remove(ctx context.Context, tenantID uuid.UUID, deviceID string) bool {
	key := sessionKey{tenantID: tenantID, deviceID: deviceID}

	r.mu.Lock()
	c, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if !ok {
		return false
	}
	c.Close()
	r.metrics.SessionClosed(ctx)
	r.logger.Info("receiving session closed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("device_id", deviceID),
		zap.String("session_id", c.SessionID().String()),
	)
	return true
}

// EvictIdle closes the sessions that rest outside an order (SELECTING_ORDER
// or ERROR), have no command in flight and ran their last command before cutoff. It returns how many
// were closed. A session with an order loaded is never evicted, however long
// it has been idle.
func (r *SessionRegistry) EvictIdle(ctx context.Context, cutoff time.Time) int {
	r.mu.Lock()
	var idle []*Controller
	for key, c := range r.sessions {
		view := c.View()
		if !view.State.IsResting() || !view.UpdatedAt.Before(cutoff) || c.Busy() {
			continue
		}
		idle = append(idle, c)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	for _, c := range idle {
		lastActivity := c.View().UpdatedAt
		c.Close()
		r.metrics.SessionClosed(ctx)
		r.logger.Info("idle receiving session evicted",
			zap.String("tenant_id", c.TenantID().String()),
			zap.String("device_id", c.DeviceID()),
			zap.String("session_id", c.SessionID().String()),
			zap.Time("last_activity", lastActivity),
		)
	}
	return len(idle)
}

// Len returns the number of open sessions
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every controller
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[sessionKey]*Controller)
	r.mu.Unlock()

	for _, c := range sessions {
		c.Close()
		r.metrics.SessionClosed(context.Background())
	}
}
