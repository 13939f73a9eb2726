// Package session holds the per-buyer conversation state that bridges the
// multi-step chat flow to the order lifecycle. Sessions are transient: one
// buy -> submit cycle, cleared on completion, cancellation or replacement.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/marshallcc/purchase-bot/internal/order/application"
	"github.com/marshallcc/purchase-bot/internal/order/domain"
	"github.com/marshallcc/purchase-bot/pkg/keylock"
)

type Step string

const (
	StepIdle               Step = "IDLE"
	StepAwaitingRegion     Step = "AWAITING_REGION_CHOICE"
	StepAwaitingScreenshot Step = "AWAITING_SCREENSHOT"
)

// ErrNoPurchaseInProgress is returned when a region choice or screenshot
// arrives outside an active purchase flow.
var ErrNoPurchaseInProgress = errors.New("no purchase in progress")

type Session struct {
	Step    Step
	Region  domain.Region
	OrderID int64
}

// OrderFlow is the slice of the order service the session machine drives.
type OrderFlow interface {
	CreateOrder(ctx context.Context, buyerID int64, region domain.Region) (domain.Order, error)
	SubmitProof(ctx context.Context, orderID int64, proofRef string) (domain.Order, application.ReviewRequest, error)
}

// Manager sequences each buyer through region choice and screenshot
// submission. Events for the same buyer are serialized; different buyers
// proceed concurrently.
type Manager struct {
	log  *slog.Logger
	flow OrderFlow

	locks *keylock.Map

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager(log *slog.Logger, flow OrderFlow) *Manager {
	return &Manager{
		log:      log,
		flow:     flow,
		locks:    keylock.New(),
		sessions: make(map[int64]*Session),
	}
}

// Begin starts (or restarts) a purchase flow. Re-entrant: any stale
// in-flight session is silently discarded; already-created orders keep
// their current status.
func (m *Manager) Begin(buyerID int64) {
	unlock := m.locks.Lock(buyerID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[buyerID]; ok && old.Step != StepIdle {
		m.log.Info("discarding stale session", "buyer_id", buyerID, "step", old.Step, "order_id", old.OrderID)
	}
	m.sessions[buyerID] = &Session{Step: StepAwaitingRegion}
}

// ChooseRegion validates the region token, creates the order and advances
// the session to the screenshot step. An invalid token or a choice outside
// an active flow leaves the session unchanged.
func (m *Manager) ChooseRegion(ctx context.Context, buyerID int64, token string) (domain.Order, error) {
	unlock := m.locks.Lock(buyerID)
	defer unlock()

	sess := m.get(buyerID)
	if sess.Step != StepAwaitingRegion {
		return domain.Order{}, ErrNoPurchaseInProgress
	}
	region, err := domain.ParseRegion(token)
	if err != nil {
		return domain.Order{}, err
	}

	o, err := m.flow.CreateOrder(ctx, buyerID, region)
	if err != nil {
		return domain.Order{}, err
	}

	m.set(buyerID, &Session{Step: StepAwaitingScreenshot, Region: region, OrderID: o.ID})
	return o, nil
}

// SubmitScreenshot attaches the proof to the session's order and clears the
// session. If the session lost its order binding, a replacement order is
// synthesized in the last-known region (default region as a last resort) so
// the buyer's proof is not dropped.
func (m *Manager) SubmitScreenshot(ctx context.Context, buyerID int64, proofRef string) (domain.Order, application.ReviewRequest, error) {
	unlock := m.locks.Lock(buyerID)
	defer unlock()

	sess := m.get(buyerID)
	if sess.Step != StepAwaitingScreenshot {
		return domain.Order{}, application.ReviewRequest{}, ErrNoPurchaseInProgress
	}

	orderID := sess.OrderID
	if orderID == 0 {
		region := sess.Region
		if region == "" {
			region = domain.DefaultRegion
		}
		m.log.Warn("session lost its order, synthesizing replacement", "buyer_id", buyerID, "region", region)
		o, err := m.flow.CreateOrder(ctx, buyerID, region)
		if err != nil {
			return domain.Order{}, application.ReviewRequest{}, err
		}
		orderID = o.ID
	}

	o, review, err := m.flow.SubmitProof(ctx, orderID, proofRef)
	if err != nil {
		return domain.Order{}, application.ReviewRequest{}, err
	}

	m.clear(buyerID)
	return o, review, nil
}

// Cancel forces the session back to idle from any step. The underlying
// order record, if one was created, is left in its current status.
func (m *Manager) Cancel(buyerID int64) {
	unlock := m.locks.Lock(buyerID)
	defer unlock()
	m.clear(buyerID)
}

// Step reports the buyer's current step; used by the gateway to re-prompt
// on non-image input at the screenshot step.
func (m *Manager) Step(buyerID int64) Step {
	return m.get(buyerID).Step
}

func (m *Manager) get(buyerID int64) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[buyerID]; ok {
		return *s
	}
	return Session{Step: StepIdle}
}

func (m *Manager) set(buyerID int64, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[buyerID] = s
}

func (m *Manager) clear(buyerID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, buyerID)
}
