package domain

import (
	"errors"
	"fmt"
	"time"
)

type Region string

const (
	RegionUK Region = "UK"
	RegionDE Region = "DE"
)

// DefaultRegion is used when a screenshot arrives for a session that lost
// its region choice.
const DefaultRegion = RegionUK

func ParseRegion(tok string) (Region, error) {
	switch Region(tok) {
	case RegionUK, RegionDE:
		return Region(tok), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRegion, tok)
}

type OrderStatus string

const (
	StatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	StatusPendingApproval OrderStatus = "PENDING_APPROVAL"
	StatusApproved        OrderStatus = "APPROVED"
	StatusRejected        OrderStatus = "REJECTED"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(tok string) (Decision, error) {
	switch Decision(tok) {
	case DecisionApprove, DecisionReject:
		return Decision(tok), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDecision, tok)
}

var (
	ErrUnknownRegion     = errors.New("unknown region")
	ErrUnknownDecision   = errors.New("unknown decision")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrOrderFinalized    = errors.New("order already finalized")
)

// Order is one buyer's purchase attempt for one region, tracked through
// admin review. Orders are never deleted; they form the audit trail.
type Order struct {
	ID        int64
	BuyerID   int64
	Region    Region
	Status    OrderStatus
	ProofRef  string // empty until a payment screenshot is attached
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewOrder(buyerID int64, region Region) Order {
	now := time.Now().UTC()
	return Order{
		BuyerID:   buyerID,
		Region:    region,
		Status:    StatusAwaitingPayment,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the order has been finalized. Terminal orders
// accept no further transitions.
func (o Order) Terminal() bool {
	return o.Status == StatusApproved || o.Status == StatusRejected
}

// AttachProof records the payment screenshot reference and moves the order
// to PENDING_APPROVAL.
func (o *Order) AttachProof(ref string) error {
	if o.Status != StatusAwaitingPayment {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusPendingApproval)
	}
	o.ProofRef = ref
	o.Status = StatusPendingApproval
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Finalize applies an admin decision. A terminal order returns
// ErrOrderFinalized so repeated decisions become no-ops upstream instead of
// re-running side effects.
func (o *Order) Finalize(d Decision) error {
	if o.Terminal() {
		return fmt.Errorf("%w: %s", ErrOrderFinalized, o.Status)
	}
	if o.Status != StatusPendingApproval {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, d)
	}
	switch d {
	case DecisionApprove:
		o.Status = StatusApproved
	case DecisionReject:
		o.Status = StatusRejected
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDecision, d)
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}
