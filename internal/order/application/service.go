package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marshallcc/purchase-bot/internal/identity"
	"github.com/marshallcc/purchase-bot/internal/order/domain"
	"github.com/marshallcc/purchase-bot/pkg/keylock"
	"github.com/marshallcc/purchase-bot/pkg/tracing"
)

// ErrNotAuthorized is returned when anyone but the configured administrator
// attempts an approve/reject.
var ErrNotAuthorized = errors.New("not authorized")

// handleAttempts bounds retries when the provisioner reports a handle
// collision; each attempt draws a fresh random suffix.
const handleAttempts = 3

// Service is the order lifecycle state machine. All status transitions go
// through it; transitions for the same order id are strictly serialized.
type Service struct {
	log     *slog.Logger
	store   OrderStore
	prov    Provisioner
	adminID int64
	locks   *keylock.Map
}

func NewService(log *slog.Logger, store OrderStore, prov Provisioner, adminID int64) *Service {
	return &Service{
		log:     log,
		store:   store,
		prov:    prov,
		adminID: adminID,
		locks:   keylock.New(),
	}
}

// RecordBuyer upserts the buyer profile; last-seen values win.
func (s *Service) RecordBuyer(ctx context.Context, b domain.Buyer) error {
	return s.store.UpsertBuyer(ctx, b)
}

// CreateOrder opens a new order in AWAITING_PAYMENT for the chosen region.
func (s *Service) CreateOrder(ctx context.Context, buyerID int64, region domain.Region) (domain.Order, error) {
	o, err := s.store.Create(ctx, buyerID, region, tracing.Traceparent(ctx))
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("order created", "order_id", o.ID, "buyer_id", buyerID, "region", region)
	return o, nil
}

// SubmitProof attaches the payment screenshot reference and moves the order
// to PENDING_APPROVAL. The returned ReviewRequest must be delivered to the
// administrator by the caller.
func (s *Service) SubmitProof(ctx context.Context, orderID int64, proofRef string) (domain.Order, ReviewRequest, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, ReviewRequest{}, err
	}
	if err := o.AttachProof(proofRef); err != nil {
		return domain.Order{}, ReviewRequest{}, err
	}

	payload, err := json.Marshal(domain.ProofSubmitted{OrderID: o.ID, ProofRef: proofRef})
	if err != nil {
		return domain.Order{}, ReviewRequest{}, err
	}
	if err := s.store.UpdateWithOutbox(ctx, o, "ProofSubmitted", payload, tracing.Traceparent(ctx)); err != nil {
		return domain.Order{}, ReviewRequest{}, fmt.Errorf("submit proof: %w", err)
	}

	review := ReviewRequest{
		OrderID:  o.ID,
		BuyerID:  o.BuyerID,
		BuyerTag: s.buyerTag(ctx, o.BuyerID),
		Region:   o.Region,
		ProofRef: proofRef,
	}
	s.log.Info("proof submitted", "order_id", o.ID, "buyer_id", o.BuyerID)
	return o, review, nil
}

// Decide applies an admin approve/reject. Only the configured administrator
// may call it. A decision on a terminal order is a no-op reported through
// OutcomeAlreadyFinal; side effects are never re-run. On approval the status
// change is committed first, then credentials are provisioned; a
// post-commit failure is surfaced via DecideResult.Warning and never rolls
// the order back.
func (s *Service) Decide(ctx context.Context, actorID int64, d domain.Decision, orderID int64) (DecideResult, error) {
	if actorID != s.adminID {
		s.log.Warn("unauthorized decision attempt", "actor_id", actorID, "order_id", orderID)
		return DecideResult{}, ErrNotAuthorized
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return DecideResult{}, err
	}
	if err := o.Finalize(d); err != nil {
		if errors.Is(err, domain.ErrOrderFinalized) {
			return DecideResult{Order: o, Outcome: OutcomeAlreadyFinal}, nil
		}
		return DecideResult{}, err
	}

	switch d {
	case domain.DecisionApprove:
		return s.commitApproval(ctx, o)
	default:
		return s.commitRejection(ctx, o)
	}
}

func (s *Service) commitApproval(ctx context.Context, o domain.Order) (DecideResult, error) {
	payload, err := json.Marshal(domain.OrderApproved{OrderID: o.ID})
	if err != nil {
		return DecideResult{}, err
	}
	if err := s.store.UpdateWithOutbox(ctx, o, "OrderApproved", payload, tracing.Traceparent(ctx)); err != nil {
		return DecideResult{}, fmt.Errorf("approve order: %w", err)
	}

	res := DecideResult{Order: o, Outcome: OutcomeApproved}

	buyer, err := s.store.GetBuyer(ctx, o.BuyerID)
	if err != nil {
		s.log.Warn("buyer profile missing, using fallback handle", "buyer_id", o.BuyerID, "err", err)
		buyer = domain.Buyer{ID: o.BuyerID}
	}

	secret := identity.GeneratePassword()
	var handle string
	var provErr error
	for range handleAttempts {
		handle = identity.NewHandle(buyer.DisplayName())
		provErr = s.prov.IssueCredential(ctx, o.Region, handle, secret)
		if !errors.Is(provErr, ErrHandleTaken) {
			break
		}
		s.log.Warn("handle collision, retrying", "order_id", o.ID, "handle", handle)
	}
	if provErr != nil {
		s.log.Error("provisioning failed after approval", "order_id", o.ID, "err", provErr)
		res.Warning = fmt.Errorf("provisioning failed: %w", provErr)
		return res, nil
	}

	res.Credentials = &Credentials{Region: o.Region, Handle: handle, Secret: secret}
	s.log.Info("order approved", "order_id", o.ID, "handle", handle)
	return res, nil
}

func (s *Service) commitRejection(ctx context.Context, o domain.Order) (DecideResult, error) {
	payload, err := json.Marshal(domain.OrderRejected{OrderID: o.ID})
	if err != nil {
		return DecideResult{}, err
	}
	if err := s.store.UpdateWithOutbox(ctx, o, "OrderRejected", payload, tracing.Traceparent(ctx)); err != nil {
		return DecideResult{}, fmt.Errorf("reject order: %w", err)
	}
	s.log.Info("order rejected", "order_id", o.ID)
	return DecideResult{Order: o, Outcome: OutcomeRejected}, nil
}

func (s *Service) buyerTag(ctx context.Context, buyerID int64) string {
	b, err := s.store.GetBuyer(ctx, buyerID)
	if err != nil || b.Username == "" {
		return "unknown"
	}
	return "@" + b.Username
}
