package allocation

import (
	"errors"
	"fmt"
	"sort"
)

// Money is an amount in the currency's minor unit.
type Money = int64

// PoolTag identifies a balance pool.
type PoolTag string

const (
	// PoolWallet is the primary spendable balance.
	PoolWallet PoolTag = "WALLET"
	// PoolCommission is the earned/bonus balance, spent only after the wallet.
	PoolCommission PoolTag = "COMMISSION"
)

// precedence orders pools; lower is debited first.
var precedence = map[PoolTag]int{
	PoolWallet:     0,
	PoolCommission: 1,
}

// Valid reports whether the tag is a known pool.
func (t PoolTag) Valid() bool {
	_, ok := precedence[t]
	return ok
}

// Pool is a snapshot of one balance pool.
type Pool struct {
	Tag     PoolTag
	Balance Money
}

// Instruction debits Amount from the pool identified by Tag.
type Instruction struct {
	Tag    PoolTag `json:"pool"`
	Amount Money   `json:"amount"`
}

// Plan is the ordered list of debit instructions covering a requested amount.
type Plan []Instruction

// Total sums the plan's instructions.
func (p Plan) Total() Money {
	var total Money
	for _, in := range p {
		total += in.Amount
	}
	return total
}

// Amount returns what the plan debits from tag, zero when the pool is untouched.
func (p Plan) Amount(tag PoolTag) Money {
	for _, in := range p {
		if in.Tag == tag {
			return in.Amount
		}
	}
	return 0
}

// WalletOnly reports whether the wallet pool alone covers the plan.
func (p Plan) WalletOnly() bool {
	return len(p) == 1 && p[0].Tag == PoolWallet
}

var (
	// ErrInsufficientFunds is matched by *InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidPool is returned for unknown tags, duplicate tags or negative balances.
	ErrInvalidPool = errors.New("invalid balance pool")
	// ErrNegativeAmount is returned when asked to allocate less than zero.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// InsufficientFundsError reports how much the pools fall short by.
type InsufficientFundsError struct {
	Shortfall Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: short by %d", e.Shortfall)
}

// Is lets errors.Is match ErrInsufficientFunds.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Allocate splits amount across pools, debiting the wallet before the
// commission pool regardless of the order pools are passed in. Pools with a
// zero balance contribute no instruction. A zero amount yields an empty plan;
// range checks happen upstream.
func Allocate(amount Money, pools []Pool) (Plan, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}
	ordered := make([]Pool, len(pools))
	copy(ordered, pools)

	seen := make(map[PoolTag]bool, len(ordered))
	for _, p := range ordered {
		if !p.Tag.Valid() {
			return nil, fmt.Errorf("%w: unknown tag %q", ErrInvalidPool, p.Tag)
		}
		if seen[p.Tag] {
			return nil, fmt.Errorf("%w: duplicate tag %q", ErrInvalidPool, p.Tag)
		}
		if p.Balance < 0 {
			return nil, fmt.Errorf("%w: negative balance in %s", ErrInvalidPool, p.Tag)
		}
		seen[p.Tag] = true
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return precedence[ordered[i].Tag] < precedence[ordered[j].Tag]
	})

	remaining := amount
	plan := make(Plan, 0, len(ordered))
	for _, p := range ordered {
		if remaining == 0 {
			break
		}
		debit := min(remaining, p.Balance)
		if debit == 0 {
			continue
		}
		plan = append(plan, Instruction{Tag: p.Tag, Amount: debit})
		remaining -= debit
	}

	if remaining > 0 {
		return nil, &InsufficientFundsError{Shortfall: remaining}
	}
	return plan, nil
}
