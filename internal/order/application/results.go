package application

import "github.com/marshallcc/purchase-bot/internal/order/domain"

// ReviewRequest is the outbound effect of a proof submission: the gateway
// must deliver it to the administrator with approve/reject actions.
type ReviewRequest struct {
	OrderID  int64
	BuyerID  int64
	BuyerTag string
	Region   domain.Region
	ProofRef string
}

type Outcome string

const (
	OutcomeApproved     Outcome = "approved"
	OutcomeRejected     Outcome = "rejected"
	OutcomeAlreadyFinal Outcome = "already_final"
)

// Credentials are delivered to the buyer after a successful approval.
type Credentials struct {
	Region domain.Region
	Handle string
	Secret string
}

// DecideResult carries the committed order, the effective outcome and the
// post-commit effects the gateway must deliver. Warning is set when a
// post-commit step failed; the state change stands regardless.
type DecideResult struct {
	Order       domain.Order
	Outcome     Outcome
	Credentials *Credentials
	Warning     error
}
