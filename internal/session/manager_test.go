package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallcc/purchase-bot/internal/order/application"
	"github.com/marshallcc/purchase-bot/internal/order/domain"
)

type fakeFlow struct {
	mu        sync.Mutex
	nextID    int64
	created   []domain.Order
	submitted map[int64]string
	createErr error
}

func newFakeFlow() *fakeFlow {
	return &fakeFlow{submitted: make(map[int64]string)}
}

func (f *fakeFlow) CreateOrder(_ context.Context, buyerID int64, region domain.Region) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.Order{}, f.createErr
	}
	f.nextID++
	o := domain.NewOrder(buyerID, region)
	o.ID = f.nextID
	f.created = append(f.created, o)
	return o, nil
}

func (f *fakeFlow) SubmitProof(_ context.Context, orderID int64, proofRef string) (domain.Order, application.ReviewRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted[orderID] = proofRef
	o := domain.Order{ID: orderID, Status: domain.StatusPendingApproval, ProofRef: proofRef}
	return o, application.ReviewRequest{OrderID: orderID, ProofRef: proofRef}, nil
}

func newTestManager(flow *fakeFlow) *Manager {
	return NewManager(slog.New(slog.DiscardHandler), flow)
}

func TestPurchaseSteps(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	m := newTestManager(flow)

	assert.Equal(t, StepIdle, m.Step(1))

	m.Begin(1)
	assert.Equal(t, StepAwaitingRegion, m.Step(1))

	o, err := m.ChooseRegion(ctx, 1, "UK")
	require.NoError(t, err)
	assert.Equal(t, domain.RegionUK, o.Region)
	assert.Equal(t, StepAwaitingScreenshot, m.Step(1))

	got, review, err := m.SubmitScreenshot(ctx, 1, "file-9")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, "file-9", review.ProofRef)
	assert.Equal(t, StepIdle, m.Step(1), "session cleared after submission")
	assert.Len(t, flow.created, 1)
}

func TestChooseRegionInvalidToken(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	m := newTestManager(flow)
	m.Begin(1)

	_, err := m.ChooseRegion(ctx, 1, "FR")
	assert.ErrorIs(t, err, domain.ErrUnknownRegion)
	assert.Equal(t, StepAwaitingRegion, m.Step(1), "step unchanged on invalid token")
	assert.Empty(t, flow.created, "no order created on invalid token")
}

func TestChooseRegionOutsideFlow(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(newFakeFlow())

	_, err := m.ChooseRegion(ctx, 1, "UK")
	assert.ErrorIs(t, err, ErrNoPurchaseInProgress)
}

func TestScreenshotOutsideFlow(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	m := newTestManager(flow)

	_, _, err := m.SubmitScreenshot(ctx, 1, "file-1")
	assert.ErrorIs(t, err, ErrNoPurchaseInProgress)
	assert.Empty(t, flow.created, "stray screenshot never creates an order")
}

func TestScreenshotRecoversLostOrder(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	m := newTestManager(flow)

	// Session survived but its order binding was lost.
	m.set(1, &Session{Step: StepAwaitingScreenshot, Region: domain.RegionDE})

	o, _, err := m.SubmitScreenshot(ctx, 1, "file-1")
	require.NoError(t, err)
	require.Len(t, flow.created, 1)
	assert.Equal(t, domain.RegionDE, flow.created[0].Region, "last-known region used")
	assert.Equal(t, "file-1", flow.submitted[o.ID])
}

func TestScreenshotRecoveryDefaultsRegion(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	m := newTestManager(flow)

	m.set(1, &Session{Step: StepAwaitingScreenshot})

	_, _, err := m.SubmitScreenshot(ctx, 1, "file-1")
	require.NoError(t, err)
	require.Len(t, flow.created, 1)
	assert.Equal(t, domain.DefaultRegion, flow.created[0].Region)
}

func TestCancelFromAnyStep(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	m := newTestManager(flow)

	m.Begin(1)
	m.Cancel(1)
	assert.Equal(t, StepIdle, m.Step(1))

	m.Begin(1)
	_, err := m.ChooseRegion(ctx, 1, "UK")
	require.NoError(t, err)
	m.Cancel(1)
	assert.Equal(t, StepIdle, m.Step(1))

	// The created order is abandoned, not deleted.
	assert.Len(t, flow.created, 1)
	assert.Empty(t, flow.submitted)
}

func TestBeginIsReentrant(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	m := newTestManager(flow)

	m.Begin(1)
	_, err := m.ChooseRegion(ctx, 1, "UK")
	require.NoError(t, err)

	// Starting over mid-flight discards the stale session.
	m.Begin(1)
	assert.Equal(t, StepAwaitingRegion, m.Step(1))

	o, err := m.ChooseRegion(ctx, 1, "DE")
	require.NoError(t, err)
	assert.Equal(t, domain.RegionDE, o.Region)
	assert.Len(t, flow.created, 2)
}

func TestCreateOrderFailureKeepsStep(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	flow.createErr = errors.New("store down")
	m := newTestManager(flow)
	m.Begin(1)

	_, err := m.ChooseRegion(ctx, 1, "UK")
	require.Error(t, err)
	assert.Equal(t, StepAwaitingRegion, m.Step(1))
}

func TestBuyersAreIndependent(t *testing.T) {
	ctx := context.Background()
	flow := newFakeFlow()
	m := newTestManager(flow)

	m.Begin(1)
	m.Begin(2)
	_, err := m.ChooseRegion(ctx, 1, "UK")
	require.NoError(t, err)

	assert.Equal(t, StepAwaitingScreenshot, m.Step(1))
	assert.Equal(t, StepAwaitingRegion, m.Step(2))

	m.Cancel(1)
	assert.Equal(t, StepAwaitingRegion, m.Step(2))
}
