package market

import (
	"encoding/hex"
	"strconv"

	"dantemarket/core/types"
)

const (
	EventTypeAuctionCreated   = "market.auction.created"
	EventTypeAuctionBid       = "market.auction.bid"
	EventTypeAuctionSettled   = "market.auction.settled"
	EventTypeAuctionCancelled = "market.auction.cancelled"
	EventTypeAssetEnabled     = "market.asset.enabled"
)

// NewCreatedEvent returns the canonical event payload for a new listing.
func NewCreatedEvent(a *Auction) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["auctionId"] = strconv.FormatUint(a.ID, 10)
		attrs["seller"] = hex.EncodeToString(a.Seller[:])
		attrs["assetContract"] = hex.EncodeToString(a.AssetContract[:])
		attrs["tokenId"] = strconv.FormatUint(a.TokenID, 10)
		attrs["quantity"] = strconv.FormatUint(a.Quantity, 10)
		attrs["basePrice"] = a.BasePrice.String()
		attrs["endTime"] = strconv.FormatInt(a.EndTime, 10)
	}
	return &types.Event{Type: EventTypeAuctionCreated, Attributes: attrs}
}

// NewBidEvent returns the canonical event payload for an accepted bid,
// carrying bidder, amount and auction id.
func NewBidEvent(a *Auction) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["auctionId"] = strconv.FormatUint(a.ID, 10)
		attrs["bidder"] = hex.EncodeToString(a.HighestBidder[:])
		attrs["amount"] = a.HighestBid.String()
	}
	return &types.Event{Type: EventTypeAuctionBid, Attributes: attrs}
}

// NewSettledEvent returns the canonical event payload for a settlement.
func NewSettledEvent(a *Auction) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["auctionId"] = strconv.FormatUint(a.ID, 10)
	}
	return &types.Event{Type: EventTypeAuctionSettled, Attributes: attrs}
}

// NewCancelledEvent returns the canonical event payload for a cancellation.
func NewCancelledEvent(a *Auction) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["auctionId"] = strconv.FormatUint(a.ID, 10)
	}
	return &types.Event{Type: EventTypeAuctionCancelled, Attributes: attrs}
}

// NewAssetEnabledEvent returns the event payload emitted when an asset
// contract is enabled for trading.
func NewAssetEnabledEvent(asset [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeAssetEnabled,
		Attributes: map[string]string{
			"assetContract": hex.EncodeToString(asset[:]),
		},
	}
}
