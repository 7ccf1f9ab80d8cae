package wallet

import "time"

// Wallet represents a stored value account backed by two ledger accounts: the
// spendable wallet balance and the commission balance.
type Wallet struct {
	ID                    string
	OwnerID               string
	AccountCode           string
	CommissionAccountCode string
	Currency              string
	Status                string
	CreatedAt             time.Time
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID   string
	Wallet     int64
	Commission int64
	AsOf       time.Time
}

// Total is the sum of both pools.
func (b Balance) Total() int64 {
	return b.Wallet + b.Commission
}
