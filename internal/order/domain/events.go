package domain

type OrderCreated struct {
	OrderID int64
	BuyerID int64
	Region  Region
}

type ProofSubmitted struct {
	OrderID  int64
	ProofRef string
}

type OrderApproved struct {
	OrderID int64
}

type OrderRejected struct {
	OrderID int64
}
