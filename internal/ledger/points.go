package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// PointsBook tracks spendable point balances and the shard-local token
// supply. Balances can never go negative: debits clamp at zero and
// report how much was actually taken. The supply clamps the same way.
// Not thread-safe; only accessed from the single-threaded shard core.
type PointsBook struct {
	balances map[uuid.UUID]int64
	supply   int64
}

func NewPointsBook() *PointsBook {
	return &PointsBook{
		balances: make(map[uuid.UUID]int64),
	}
}

// Balance returns the spendable balance for a player (zero if unknown).
func (b *PointsBook) Balance(player uuid.UUID) int64 {
	return b.balances[player]
}

// CanSpend reports whether the player holds at least amount.
func (b *PointsBook) CanSpend(player uuid.UUID, amount int64) bool {
	return b.balances[player] >= amount
}

// Credit adds amount to the player's balance.
func (b *PointsBook) Credit(player uuid.UUID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative: %d", amount)
	}
	b.balances[player] += amount
	return nil
}

// Debit removes up to amount from the player's balance, clamping at
// zero, and returns the amount actually taken.
func (b *PointsBook) Debit(player uuid.UUID, amount int64) int64 {
	if amount < 0 {
		return 0
	}
	have := b.balances[player]
	taken := amount
	if taken > have {
		taken = have
	}
	b.balances[player] = have - taken
	return taken
}

// DebitStrict removes exactly amount or fails without mutating.
func (b *PointsBook) DebitStrict(player uuid.UUID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be non-negative: %d", amount)
	}
	if b.balances[player] < amount {
		return fmt.Errorf("insufficient balance: have=%d need=%d", b.balances[player], amount)
	}
	b.balances[player] -= amount
	return nil
}

// Transfer moves exactly amount between players or fails without mutating.
func (b *PointsBook) Transfer(from, to uuid.UUID, amount int64) error {
	if err := b.DebitStrict(from, amount); err != nil {
		return err
	}
	b.balances[to] += amount
	return nil
}

// Supply returns the shard-local token supply.
func (b *PointsBook) Supply() int64 {
	return b.supply
}

// Mint grows the shard-local supply.
func (b *PointsBook) Mint(amount int64) {
	if amount > 0 {
		b.supply += amount
	}
}

// Burn shrinks the shard-local supply, clamping at zero, and returns
// the amount actually burned.
func (b *PointsBook) Burn(amount int64) int64 {
	if amount < 0 {
		return 0
	}
	burned := amount
	if burned > b.supply {
		burned = b.supply
	}
	b.supply -= burned
	return burned
}

// Accounts returns the number of players holding a balance entry.
func (b *PointsBook) Accounts() int {
	return len(b.balances)
}
