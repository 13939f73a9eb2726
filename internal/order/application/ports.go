package application

import (
	"context"
	"errors"

	"github.com/marshallcc/purchase-bot/internal/order/domain"
)

// ErrHandleTaken is returned by a Provisioner when the requested handle
// already exists. The service retries with a regenerated handle.
var ErrHandleTaken = errors.New("handle already taken")

// OrderStore is the durable order and buyer mapping. Create and
// UpdateWithOutbox must write the audit event in the same transaction as
// the record change, and a Get after UpdateWithOutbox must observe the new
// status.
type OrderStore interface {
	Create(ctx context.Context, buyerID int64, region domain.Region, traceparent string) (domain.Order, error)
	UpdateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error
	Get(ctx context.Context, id int64) (domain.Order, error)
	GetBuyer(ctx context.Context, id int64) (domain.Buyer, error)
	UpsertBuyer(ctx context.Context, b domain.Buyer) error
}

// Provisioner issues credentials on an approved order.
type Provisioner interface {
	IssueCredential(ctx context.Context, region domain.Region, handle, secret string) error
}
