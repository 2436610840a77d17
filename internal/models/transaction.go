package models

import "time"

// Transaction kinds.
const (
	TxDeposit      = "deposit"
	TxWithdrawal   = "withdrawal"
	TxReward       = "reward"
	TxAttemptReset = "attempt-reset"
	TxAdjustment   = "adjustment"
)

// Transaction statuses.
const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxRejected  = "rejected"
)

// Transaction is a wallet ledger entry stored at transactions/<id>.
type Transaction struct {
	ID        string    `bson:"id" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	Kind      string    `bson:"kind" json:"kind"`
	Amount    float64   `bson:"amount" json:"amount"`
	Status    string    `bson:"status" json:"status"`
	Method    string    `bson:"method,omitempty" json:"method,omitempty"`
	Reference string    `bson:"reference,omitempty" json:"reference,omitempty"`
	Account   string    `bson:"account,omitempty" json:"-"` // encrypted payout account
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
