package market

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"dantemarket/core/events"
	"dantemarket/core/types"
	"dantemarket/native/assets"
	nativecommon "dantemarket/native/common"
	"dantemarket/native/token"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilToken    = errors.New("market engine: settlement ledger not configured")
	errNilAssets   = errors.New("market engine: asset custody not configured")
	errNilTreasury = errors.New("market engine: fee treasury not configured")
)

const (
	feeDenominator     = 10_000
	bidIncrementPct    = 5
	cancellationFeeBps = 200
)

// engineState is the persistence surface the engine requires: the auction
// book plus the registry of asset contracts enabled for trading.
type engineState interface {
	AuctionPut(*Auction) error
	AuctionGet(id uint64) (*Auction, bool, error)
	AuctionNextID() (uint64, error)
	OpenAuctionAdd(id uint64) error
	OpenAuctionRemove(id uint64) error
	OpenAuctionIDs() ([]uint64, error)
	AssetEnabled(asset [20]byte) (bool, error)
	SetAssetEnabled(asset [20]byte, enabled bool) error
}

// SettlementLedger moves settlement-token value on behalf of the engine.
type SettlementLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
}

// AssetCustody moves and inspects tradable assets.
type AssetCustody interface {
	TransferUnit(operator, asset [20]byte, tokenID uint64, from, to [20]byte) error
	TransferQuantity(operator, asset [20]byte, tokenID uint64, from, to [20]byte, quantity uint64) error
	OwnerOf(asset [20]byte, tokenID uint64) ([20]byte, error)
	BalanceOf(asset, holder [20]byte, tokenID uint64) (uint64, error)
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// VaultAddress returns the deterministic address holding escrowed assets and
// bidder funds. The same address acts as the engine's operator identity
// towards the asset ledgers, so asset contracts allow-list it once.
func VaultAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte("market/vault"))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// Engine implements the auction lifecycle: listing creation with custody
// pull, increment-checked bidding with held funds, settlement with a fee
// split, and cancellation. Every state-changing operation is serialized and
// ordered so failures abort before any mutation lands.
type Engine struct {
	mu sync.Mutex

	state   engineState
	token   SettlementLedger
	assets  AssetCustody
	roles   nativecommon.RoleView
	emitter events.Emitter
	nowFn   func() int64

	vault        [20]byte
	feeTreasury  [20]byte
	buyerFeeBps  uint32
	sellerFeeBps uint32
}

// NewEngine creates a marketplace engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		vault:   VaultAddress(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetSettlementLedger configures the settlement-token ledger.
func (e *Engine) SetSettlementLedger(ledger SettlementLedger) { e.token = ledger }

// SetAssetCustody configures the asset ledger used for escrow transfers.
func (e *Engine) SetAssetCustody(custody AssetCustody) { e.assets = custody }

// SetRoles configures the capability view used for admin checks.
func (e *Engine) SetRoles(roles nativecommon.RoleView) { e.roles = roles }

// SetFeeTreasury configures the address that receives marketplace fees.
func (e *Engine) SetFeeTreasury(addr [20]byte) { e.feeTreasury = addr }

// SetFees configures the buyer- and seller-side fee rates in basis points.
// Settlement charges the seller-side rate out of the proceeds; the buyer rate
// is stored and exposed for callers that apply it on their side of the trade.
func (e *Engine) SetFees(buyerBps, sellerBps uint32) error {
	if buyerBps > feeDenominator || sellerBps > feeDenominator {
		return fmt.Errorf("market: fee bps out of range")
	}
	e.buyerFeeBps = buyerBps
	e.sellerFeeBps = sellerBps
	return nil
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Vault returns the engine's escrow address.
func (e *Engine) Vault() [20]byte { return e.vault }

// AuctionFee returns the configured fee in basis points, matching the rate
// applied to settlement proceeds.
func (e *Engine) AuctionFee() uint32 { return e.sellerFeeBps }

// BuyerFee returns the configured buyer-side rate in basis points.
func (e *Engine) BuyerFee() uint32 { return e.buyerFeeBps }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.token == nil:
		return errNilToken
	case e.assets == nil:
		return errNilAssets
	case e.feeTreasury == ([20]byte{}):
		return errNilTreasury
	}
	return nil
}

func (e *Engine) isAdmin(addr [20]byte) bool {
	return nativecommon.Authorized(e.roles, nativecommon.RoleAdmin, addr)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// feeAmount computes amount*bps/10000 rounded down.
func feeAmount(amount *big.Int, bps uint32) *big.Int {
	fee := new(big.Int).Mul(cloneBigInt(amount), new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}

// requiredMinimum is the smallest acceptable bid: 5% of the base price for
// the first bid, then the running high bid plus a flat 5% increment. The
// increment rounds up so undercutting by dust never clears the bar.
func requiredMinimum(a *Auction) *big.Int {
	reference := a.BasePrice
	if a.HasBid() {
		reference = a.HighestBid
	}
	increment := new(big.Int).Mul(cloneBigInt(reference), big.NewInt(bidIncrementPct))
	increment.Add(increment, big.NewInt(99))
	increment.Div(increment, big.NewInt(100))
	if !a.HasBid() {
		return increment
	}
	return new(big.Int).Add(a.HighestBid, increment)
}

func mapTokenErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrInsufficientAllowance):
		return ErrInsufficientAllowance
	case errors.Is(err, token.ErrInsufficientBalance):
		return ErrInsufficientFunds
	default:
		return err
	}
}

func (e *Engine) loadAuction(id uint64) (*Auction, error) {
	a, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return a, nil
}

// AddAsset enables an asset contract for trading. Admin only, idempotent.
func (e *Engine) AddAsset(caller, asset [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	enabled, err := e.state.AssetEnabled(asset)
	if err != nil {
		return err
	}
	if enabled {
		return nil
	}
	if err := e.state.SetAssetEnabled(asset, true); err != nil {
		return err
	}
	e.emit(NewAssetEnabledEvent(asset))
	return nil
}

// AssetEnabled reports whether the asset contract may be listed.
func (e *Engine) AssetEnabled(asset [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.AssetEnabled(asset)
}

// CreateSale lists an asset for auction, pulling it from the seller into the
// engine vault. The asset contract must be enabled in the registry and the
// vault must pass the contract's own whitelist; a rejected pull surfaces as a
// custody failure without touching the book.
func (e *Engine) CreateSale(seller [20]byte, singleUnit bool, asset [20]byte, tokenID, quantity uint64, endTime int64, basePrice *big.Int) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	price := cloneBigInt(basePrice)
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("market: base price must be positive")
	}
	if singleUnit {
		quantity = 1
	} else if quantity == 0 {
		return nil, fmt.Errorf("market: quantity must be positive")
	}
	now := e.now()
	if endTime <= now {
		return nil, fmt.Errorf("market: end time must be in the future")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	enabled, err := e.state.AssetEnabled(asset)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ErrAssetNotAuthorized
	}
	if err := e.pullIntoCustody(seller, singleUnit, asset, tokenID, quantity); err != nil {
		return nil, err
	}
	id, err := e.state.AuctionNextID()
	if err != nil {
		return nil, err
	}
	a := &Auction{
		ID:            id,
		Seller:        seller,
		AssetContract: asset,
		TokenID:       tokenID,
		Quantity:      quantity,
		SingleUnit:    singleUnit,
		EndTime:       endTime,
		CreatedAt:     now,
		BasePrice:     price,
		HighestBid:    big.NewInt(0),
		Status:        AuctionOpen,
	}
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	if err := e.state.OpenAuctionAdd(id); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(a))
	return a.Clone(), nil
}

// pullIntoCustody moves the listed unit(s) from the seller into the vault and
// verifies the asset ledger reports ownership consistent with a completed
// transfer. No silent partial custody.
func (e *Engine) pullIntoCustody(seller [20]byte, singleUnit bool, asset [20]byte, tokenID, quantity uint64) error {
	if singleUnit {
		if err := e.assets.TransferUnit(e.vault, asset, tokenID, seller, e.vault); err != nil {
			return fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
		}
		owner, err := e.assets.OwnerOf(asset, tokenID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
		}
		if owner != e.vault {
			return fmt.Errorf("%w: vault does not own token %d after transfer", ErrCustodyTransferFailed, tokenID)
		}
		return nil
	}
	before, err := e.assets.BalanceOf(asset, e.vault, tokenID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
	}
	if err := e.assets.TransferQuantity(e.vault, asset, tokenID, seller, e.vault, quantity); err != nil {
		return fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
	}
	after, err := e.assets.BalanceOf(asset, e.vault, tokenID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
	}
	if after < before+quantity {
		return fmt.Errorf("%w: vault balance %d below expected %d", ErrCustodyTransferFailed, after, before+quantity)
	}
	return nil
}

// releaseFromCustody hands the escrowed asset to the recipient.
func (e *Engine) releaseFromCustody(a *Auction, to [20]byte) error {
	if a.SingleUnit {
		if err := e.assets.TransferUnit(e.vault, a.AssetContract, a.TokenID, e.vault, to); err != nil {
			return fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
		}
		return nil
	}
	if err := e.assets.TransferQuantity(e.vault, a.AssetContract, a.TokenID, e.vault, to, a.Quantity); err != nil {
		return fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
	}
	return nil
}

// Bid places a bid. The first bid must clear 5% of the base price;
// subsequent bids must clear a flat 5% increment over the running high bid.
// The displaced bidder is refunded in the same operation that accepts the new
// bid.
func (e *Engine) Bid(bidder [20]byte, id uint64, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.loadAuction(id)
	if err != nil {
		return err
	}
	if a.Status != AuctionOpen || e.now() >= a.EndTime {
		return ErrAuctionNotOpen
	}
	amt := cloneBigInt(amount)
	if amt.Cmp(requiredMinimum(a)) < 0 {
		return ErrBidTooLow
	}
	// Debit first: an allowance or balance failure aborts with all state
	// untouched.
	if err := mapTokenErr(e.token.TransferFrom(e.vault, bidder, e.vault, amt)); err != nil {
		return err
	}
	if a.HasBid() {
		if err := e.token.Transfer(e.vault, a.HighestBidder, a.HighestBid); err != nil {
			return err
		}
	}
	a.HighestBid = amt
	a.HighestBidder = bidder
	if err := e.state.AuctionPut(a); err != nil {
		return err
	}
	e.emit(NewBidEvent(a))
	return nil
}

// AcceptOffer settles the auction at the current highest bid. The seller (or
// an admin) may accept at any time while the auction is open, regardless of
// the end time.
func (e *Engine) AcceptOffer(caller [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.loadAuction(id)
	if err != nil {
		return err
	}
	if caller != a.Seller && !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	if a.Status != AuctionOpen {
		return ErrAuctionNotOpen
	}
	if !a.HasBid() {
		return ErrNoBid
	}
	return e.settle(a, a.HighestBidder, a.HighestBid)
}

// Buy settles the auction instantly at the base price. Unavailable once
// bidding has started.
func (e *Engine) Buy(buyer [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.loadAuction(id)
	if err != nil {
		return err
	}
	if a.Status != AuctionOpen {
		return ErrAuctionNotOpen
	}
	if a.HasBid() {
		return ErrBuyNowUnavailable
	}
	price := cloneBigInt(a.BasePrice)
	if err := mapTokenErr(e.token.TransferFrom(e.vault, buyer, e.vault, price)); err != nil {
		return err
	}
	return e.settle(a, buyer, price)
}

// settle distributes the sale value held in the vault and hands the asset to
// the winner. Fee amounts round down; rounding dust stays with the seller.
func (e *Engine) settle(a *Auction, winner [20]byte, amount *big.Int) error {
	fee := feeAmount(amount, e.sellerFeeBps)
	proceeds := new(big.Int).Sub(cloneBigInt(amount), fee)
	if fee.Sign() > 0 {
		if err := e.token.Transfer(e.vault, e.feeTreasury, fee); err != nil {
			return err
		}
	}
	if proceeds.Sign() > 0 {
		if err := e.token.Transfer(e.vault, a.Seller, proceeds); err != nil {
			return err
		}
	}
	if err := e.releaseFromCustody(a, winner); err != nil {
		return err
	}
	a.Status = AuctionSettled
	if err := e.state.AuctionPut(a); err != nil {
		return err
	}
	if err := e.state.OpenAuctionRemove(a.ID); err != nil {
		return err
	}
	e.emit(NewSettledEvent(a))
	return nil
}

// CancelAuction reverses a listing before settlement. Only the seller or an
// admin may cancel. The seller pays a 2% cancellation fee on the base price
// from their own balance; without allowance for it the asset stays in escrow.
func (e *Engine) CancelAuction(caller [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.loadAuction(id)
	if err != nil {
		return err
	}
	if caller != a.Seller && !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	if a.Status != AuctionOpen {
		return ErrAuctionNotOpen
	}
	fee := feeAmount(a.BasePrice, cancellationFeeBps)
	if fee.Sign() > 0 {
		if err := mapTokenErr(e.token.TransferFrom(e.vault, a.Seller, e.feeTreasury, fee)); err != nil {
			return err
		}
	}
	return e.cancel(a)
}

// cancel applies the terminal cancellation effects: asset back to the seller,
// held bid funds back to the displaced bidder.
func (e *Engine) cancel(a *Auction) error {
	if err := e.releaseFromCustody(a, a.Seller); err != nil {
		return err
	}
	if a.HasBid() {
		if err := e.token.Transfer(e.vault, a.HighestBidder, a.HighestBid); err != nil {
			return err
		}
	}
	a.Status = AuctionCancelled
	if err := e.state.AuctionPut(a); err != nil {
		return err
	}
	if err := e.state.OpenAuctionRemove(a.ID); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(a))
	return nil
}

// MassCancelAuctions cancels every listed auction in one atomic batch: all
// ids are validated before any cancellation applies, so a single bad id
// aborts the whole batch. Admin only; the batch waives the cancellation fee.
func (e *Engine) MassCancelAuctions(caller [20]byte, ids []uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[uint64]struct{}, len(ids))
	auctions := make([]*Auction, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("market: duplicate auction id %d in batch", id)
		}
		seen[id] = struct{}{}
		a, err := e.loadAuction(id)
		if err != nil {
			return err
		}
		if a.Status != AuctionOpen {
			return ErrAuctionNotOpen
		}
		auctions = append(auctions, a)
	}
	for _, a := range auctions {
		if err := e.cancel(a); err != nil {
			return err
		}
	}
	return nil
}

// OpenAuctions returns the ids of currently open auctions in creation order.
func (e *Engine) OpenAuctions() ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.OpenAuctionIDs()
}

// Auctions returns the auctions for the requested ids in request order. An
// unknown id fails the whole lookup with ErrAuctionNotFound.
func (e *Engine) Auctions(ids []uint64) ([]*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Auction, 0, len(ids))
	for _, id := range ids {
		a, err := e.loadAuction(id)
		if err != nil {
			if errors.Is(err, ErrAuctionNotFound) {
				return nil, fmt.Errorf("%w: id %d", ErrAuctionNotFound, id)
			}
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Auction returns a single auction by id.
func (e *Engine) Auction(id uint64) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadAuction(id)
}

var _ SettlementLedger = (*token.Ledger)(nil)
var _ AssetCustody = (*assets.Ledger)(nil)
