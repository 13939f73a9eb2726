package domain

import "strings"

// Buyer is the chat participant behind an order. Upserted on every
// interaction with last-seen values; never deleted.
type Buyer struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName joins first and last name; may be empty when the transport
// supplied neither.
func (b Buyer) DisplayName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}
