package market

import "errors"

// Engine error taxonomy. Every failure aborts the whole operation with no
// partial state mutation; retry is a caller concern.
var (
	// ErrAssetNotAuthorized rejects listings for asset contracts absent from
	// the marketplace registry.
	ErrAssetNotAuthorized = errors.New("market: asset unauthorized for sale")
	// ErrCustodyTransferFailed reports an asset transfer into or out of
	// escrow that did not complete as expected, including rejections by the
	// asset contract's own whitelist.
	ErrCustodyTransferFailed = errors.New("market: custody transfer failed")
	// ErrAuctionNotFound is returned for lookups of unknown auction ids.
	ErrAuctionNotFound = errors.New("market: auction not found")
	// ErrAuctionNotOpen rejects operations against settled or cancelled
	// auctions, and bids placed after the end time.
	ErrAuctionNotOpen = errors.New("market: auction is not open")
	// ErrBidTooLow rejects bids below the required increment.
	ErrBidTooLow = errors.New("market: bid is smaller than the required increment")
	// ErrNoBid rejects offer acceptance when no bid has been placed.
	ErrNoBid = errors.New("market: no bid to accept")
	// ErrBuyNowUnavailable rejects instant purchase once bidding has
	// started; a standing offer is never silently discarded.
	ErrBuyNowUnavailable = errors.New("market: instant purchase unavailable after bidding has started")
	// ErrInsufficientFunds is returned when the caller's settlement-token
	// balance cannot cover the operation.
	ErrInsufficientFunds = errors.New("market: insufficient funds")
	// ErrInsufficientAllowance is returned when the caller has not
	// pre-authorized the engine to move settlement-token value.
	ErrInsufficientAllowance = errors.New("market: insufficient allowance")
	// ErrUnauthorized is returned when the caller lacks seller or
	// administrative rights for the requested mutation.
	ErrUnauthorized = errors.New("market: caller lacks seller or admin rights")
)
