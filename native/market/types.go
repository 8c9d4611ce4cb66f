package market

import (
	"fmt"
	"math/big"
)

// AuctionStatus represents the lifecycle states of a listing. Transitions out
// of AuctionOpen are terminal and happen exactly once.
type AuctionStatus uint8

const (
	AuctionOpen AuctionStatus = iota
	AuctionSettled
	AuctionCancelled
)

// Valid reports whether the status value is within the supported range.
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionOpen, AuctionSettled, AuctionCancelled:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase name of the status.
func (s AuctionStatus) String() string {
	switch s {
	case AuctionOpen:
		return "open"
	case AuctionSettled:
		return "settled"
	case AuctionCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Auction captures a single listing managed by the marketplace engine. While
// the status is AuctionOpen the listed asset sits in the engine vault, and a
// nonzero HighestBid is held in the vault on behalf of HighestBidder.
type Auction struct {
	ID            uint64
	Seller        [20]byte
	AssetContract [20]byte
	TokenID       uint64
	Quantity      uint64
	SingleUnit    bool
	EndTime       int64
	CreatedAt     int64
	BasePrice     *big.Int
	HighestBid    *big.Int
	HighestBidder [20]byte
	Status        AuctionStatus
}

// HasBid reports whether at least one bid has been accepted.
func (a *Auction) HasBid() bool {
	return a != nil && a.HighestBid != nil && a.HighestBid.Sign() > 0
}

// Clone returns a deep copy of the auction so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	if a.BasePrice != nil {
		clone.BasePrice = new(big.Int).Set(a.BasePrice)
	} else {
		clone.BasePrice = big.NewInt(0)
	}
	if a.HighestBid != nil {
		clone.HighestBid = new(big.Int).Set(a.HighestBid)
	} else {
		clone.HighestBid = big.NewInt(0)
	}
	return &clone
}

// SanitizeAuction validates the supplied auction, returning a cloned instance
// with non-nil amount fields. The function does not mutate the original value.
func SanitizeAuction(a *Auction) (*Auction, error) {
	if a == nil {
		return nil, fmt.Errorf("market: nil auction")
	}
	clone := a.Clone()
	if clone.BasePrice.Sign() <= 0 {
		return nil, fmt.Errorf("market: base price must be positive")
	}
	if clone.HighestBid.Sign() < 0 {
		return nil, fmt.Errorf("market: highest bid must be non-negative")
	}
	if clone.Quantity == 0 {
		return nil, fmt.Errorf("market: quantity must be positive")
	}
	if clone.SingleUnit && clone.Quantity != 1 {
		return nil, fmt.Errorf("market: single-unit listings carry exactly one unit")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid status %d", clone.Status)
	}
	return clone, nil
}
