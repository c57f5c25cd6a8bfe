package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationRecord is one delivered alert notification.
type NotificationRecord struct {
	ID        int64
	Owner     string
	AlertID   string
	Message   string
	Prices    map[string]float64
	CreatedAt time.Time
}

// TokenBalance is an ERC-20 balance captured alongside a wallet snapshot.
type TokenBalance struct {
	Contract string `json:"contract"`
	Balance  string `json:"balance"`
}

// WalletSnapshot is the balance of one address at one block.
type WalletSnapshot struct {
	ID          int64
	Address     string
	BlockNumber uint64
	BalanceWei  string
	BalanceETH  decimal.Decimal
	ValueUSD    *decimal.Decimal
	Tokens      []TokenBalance
	TakenAt     time.Time
}
