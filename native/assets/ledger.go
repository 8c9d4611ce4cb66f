package assets

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"dantemarket/core/events"
	"dantemarket/core/types"
	nativecommon "dantemarket/native/common"
)

var (
	errNilState = errors.New("asset ledger: state not configured")

	// ErrCollectionNotFound is returned when the asset contract address is
	// unknown to the ledger.
	ErrCollectionNotFound = errors.New("assets: collection not found")
	// ErrCollectionExists is returned when creating a collection whose
	// address is already taken.
	ErrCollectionExists = errors.New("assets: collection already exists")
	// ErrTokenNotFound is returned for operations on an unminted token.
	ErrTokenNotFound = errors.New("assets: token not found")
	// ErrTokenAlreadyMinted is returned when minting an id that exists in a
	// single-unit collection.
	ErrTokenAlreadyMinted = errors.New("assets: token already minted")
	// ErrMintCapExceeded is returned when minting would exceed the
	// collection's unit cap.
	ErrMintCapExceeded = errors.New("assets: mint cap exceeded")
	// ErrNotOwner is returned when the transfer source does not hold the
	// token.
	ErrNotOwner = errors.New("assets: caller is not the token owner")
	// ErrNotApproved is returned when the operator lacks approval to move
	// the token.
	ErrNotApproved = errors.New("assets: operator not approved")
	// ErrTransferRestricted is returned when the collection's whitelist mode
	// rejects a transfer.
	ErrTransferRestricted = errors.New("assets: transfer restricted by whitelist")
	// ErrInsufficientUnits is returned when a quantity transfer exceeds the
	// holder's balance.
	ErrInsufficientUnits = errors.New("assets: transfer amount exceeds balance")
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("assets: caller not authorized")
)

// Collection describes a tradable asset contract tracked by the ledger.
// SingleUnit selects ownership semantics (one owner per token id) over
// balance semantics (quantity per holder and id).
type Collection struct {
	Address       [20]byte
	Name          string
	SingleUnit    bool
	MintCap       uint64 // 0 disables the cap
	Minted        uint64
	WhitelistMode bool
}

// Clone returns a copy of the collection descriptor.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// State is the persistence surface the asset ledger requires.
type State interface {
	CollectionGet(addr [20]byte) (*Collection, bool, error)
	CollectionPut(c *Collection) error
	AssetOwner(asset [20]byte, tokenID uint64) ([20]byte, bool, error)
	SetAssetOwner(asset [20]byte, tokenID uint64, owner [20]byte) error
	AssetBalance(asset, holder [20]byte, tokenID uint64) (uint64, error)
	SetAssetBalance(asset, holder [20]byte, tokenID uint64, amount uint64) error
	AssetApproval(asset [20]byte, tokenID uint64) ([20]byte, bool, error)
	SetAssetApproval(asset [20]byte, tokenID uint64, spender [20]byte, approved bool) error
	AssetOperator(asset, owner, operator [20]byte) (bool, error)
	SetAssetOperator(asset, owner, operator [20]byte, approved bool) error
	AssetAllowlisted(asset, addr [20]byte) (bool, error)
	SetAssetAllowlisted(asset, addr [20]byte, allowed bool) error
}

type assetEvent struct {
	evt *types.Event
}

func (e assetEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e assetEvent) Event() *types.Event { return e.evt }

// Ledger manages asset collections, their unit custody and the per-collection
// transfer whitelist the marketplace depends on.
type Ledger struct {
	state   State
	roles   nativecommon.RoleView
	emitter events.Emitter
}

// NewLedger creates an asset ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state State) { l.state = state }

// SetRoles configures the capability view used for privileged operations.
func (l *Ledger) SetRoles(roles nativecommon.RoleView) { l.roles = roles }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(assetEvent{evt: evt})
}

// CollectionAddress derives a deterministic address for a named collection.
func CollectionAddress(name string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("assets/collection/" + name))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

func (l *Ledger) loadCollection(asset [20]byte) (*Collection, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	col, ok, err := l.state.CollectionGet(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCollectionNotFound
	}
	return col, nil
}

// CreateCollection registers a new asset collection. Whitelist mode starts
// enabled so only allow-listed operators can participate in transfers.
func (l *Ledger) CreateCollection(caller [20]byte, name string, singleUnit bool, mintCap uint64) (*Collection, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if !nativecommon.Authorized(l.roles, nativecommon.RoleAdmin, caller) {
		return nil, ErrUnauthorized
	}
	if name == "" {
		return nil, fmt.Errorf("assets: collection name required")
	}
	addr := CollectionAddress(name)
	if _, ok, err := l.state.CollectionGet(addr); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrCollectionExists
	}
	col := &Collection{
		Address:       addr,
		Name:          name,
		SingleUnit:    singleUnit,
		MintCap:       mintCap,
		WhitelistMode: true,
	}
	if err := l.state.CollectionPut(col); err != nil {
		return nil, err
	}
	l.emit(newCollectionCreatedEvent(col))
	return col.Clone(), nil
}

// Mint issues units of the token id to the recipient. Single-unit collections
// accept exactly one unit per id; quantity collections add to the holder's
// balance. Minting is privileged and bypasses the whitelist gate.
func (l *Ledger) Mint(caller, asset, to [20]byte, tokenID uint64, quantity uint64) error {
	col, err := l.loadCollection(asset)
	if err != nil {
		return err
	}
	if !nativecommon.Authorized(l.roles, nativecommon.RoleMinter, caller) {
		return ErrUnauthorized
	}
	if quantity == 0 {
		return fmt.Errorf("assets: mint quantity must be positive")
	}
	if col.SingleUnit {
		if quantity != 1 {
			return fmt.Errorf("assets: single-unit mint quantity must be 1")
		}
		if _, owned, err := l.state.AssetOwner(asset, tokenID); err != nil {
			return err
		} else if owned {
			return ErrTokenAlreadyMinted
		}
	}
	if col.MintCap != 0 && col.Minted+quantity > col.MintCap {
		return ErrMintCapExceeded
	}
	if col.SingleUnit {
		if err := l.state.SetAssetOwner(asset, tokenID, to); err != nil {
			return err
		}
	} else {
		balance, err := l.state.AssetBalance(asset, to, tokenID)
		if err != nil {
			return err
		}
		if err := l.state.SetAssetBalance(asset, to, tokenID, balance+quantity); err != nil {
			return err
		}
	}
	col.Minted += quantity
	if err := l.state.CollectionPut(col); err != nil {
		return err
	}
	l.emit(newMintedEvent(col, to, tokenID, quantity))
	return nil
}

// OwnerOf returns the holder of a single-unit token.
func (l *Ledger) OwnerOf(asset [20]byte, tokenID uint64) ([20]byte, error) {
	if _, err := l.loadCollection(asset); err != nil {
		return [20]byte{}, err
	}
	owner, ok, err := l.state.AssetOwner(asset, tokenID)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrTokenNotFound
	}
	return owner, nil
}

// BalanceOf returns the holder's balance for a quantity-bearing token id.
func (l *Ledger) BalanceOf(asset, holder [20]byte, tokenID uint64) (uint64, error) {
	if _, err := l.loadCollection(asset); err != nil {
		return 0, err
	}
	return l.state.AssetBalance(asset, holder, tokenID)
}

// Approve lets the owner authorize a single operator for one token id.
func (l *Ledger) Approve(caller, asset [20]byte, tokenID uint64, spender [20]byte) error {
	col, err := l.loadCollection(asset)
	if err != nil {
		return err
	}
	if !col.SingleUnit {
		return fmt.Errorf("assets: per-token approval requires a single-unit collection")
	}
	owner, ok, err := l.state.AssetOwner(asset, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}
	if owner != caller {
		return ErrNotOwner
	}
	return l.state.SetAssetApproval(asset, tokenID, spender, true)
}

// SetApprovalForAll lets a holder authorize an operator across every token id
// in the collection.
func (l *Ledger) SetApprovalForAll(caller, asset, operator [20]byte, approved bool) error {
	if _, err := l.loadCollection(asset); err != nil {
		return err
	}
	return l.state.SetAssetOperator(asset, caller, operator, approved)
}

// SetWhitelistMode toggles the collection's transfer restriction.
func (l *Ledger) SetWhitelistMode(caller, asset [20]byte, enabled bool) error {
	col, err := l.loadCollection(asset)
	if err != nil {
		return err
	}
	if !nativecommon.Authorized(l.roles, nativecommon.RoleAdmin, caller) {
		return ErrUnauthorized
	}
	col.WhitelistMode = enabled
	return l.state.CollectionPut(col)
}

// AddWhitelist allow-lists an address for transfers under whitelist mode.
func (l *Ledger) AddWhitelist(caller, asset, addr [20]byte) error {
	col, err := l.loadCollection(asset)
	if err != nil {
		return err
	}
	if !nativecommon.Authorized(l.roles, nativecommon.RoleAdmin, caller) {
		return ErrUnauthorized
	}
	if err := l.state.SetAssetAllowlisted(asset, addr, true); err != nil {
		return err
	}
	l.emit(newWhitelistEvent(EventTypeWhitelistAdded, col, addr))
	return nil
}

// RemoveWhitelist removes an address from the collection allow-list.
func (l *Ledger) RemoveWhitelist(caller, asset, addr [20]byte) error {
	col, err := l.loadCollection(asset)
	if err != nil {
		return err
	}
	if !nativecommon.Authorized(l.roles, nativecommon.RoleAdmin, caller) {
		return ErrUnauthorized
	}
	if err := l.state.SetAssetAllowlisted(asset, addr, false); err != nil {
		return err
	}
	l.emit(newWhitelistEvent(EventTypeWhitelistRemoved, col, addr))
	return nil
}

// Whitelisted reports whether the address is allow-listed on the collection.
func (l *Ledger) Whitelisted(asset, addr [20]byte) (bool, error) {
	if _, err := l.loadCollection(asset); err != nil {
		return false, err
	}
	return l.state.AssetAllowlisted(asset, addr)
}

// checkWhitelist enforces the collection gate: with whitelist mode on, at
// least one side of the transfer must be allow-listed.
func (l *Ledger) checkWhitelist(col *Collection, from, to [20]byte) error {
	if !col.WhitelistMode {
		return nil
	}
	fromOK, err := l.state.AssetAllowlisted(col.Address, from)
	if err != nil {
		return err
	}
	if fromOK {
		return nil
	}
	toOK, err := l.state.AssetAllowlisted(col.Address, to)
	if err != nil {
		return err
	}
	if !toOK {
		return ErrTransferRestricted
	}
	return nil
}

func (l *Ledger) operatorAllowed(asset, owner, operator [20]byte) (bool, error) {
	if operator == owner {
		return true, nil
	}
	return l.state.AssetOperator(asset, owner, operator)
}

// TransferUnit moves a single-unit token from its owner to the recipient on
// behalf of the operator. Per-token approval is consumed by the transfer.
func (l *Ledger) TransferUnit(operator, asset [20]byte, tokenID uint64, from, to [20]byte) error {
	col, err := l.loadCollection(asset)
	if err != nil {
		return err
	}
	if !col.SingleUnit {
		return fmt.Errorf("assets: unit transfer requires a single-unit collection")
	}
	owner, ok, err := l.state.AssetOwner(asset, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}
	if owner != from {
		return ErrNotOwner
	}
	allowed, err := l.operatorAllowed(asset, owner, operator)
	if err != nil {
		return err
	}
	if !allowed {
		approved, hasApproval, err := l.state.AssetApproval(asset, tokenID)
		if err != nil {
			return err
		}
		if !hasApproval || approved != operator {
			return ErrNotApproved
		}
	}
	if err := l.checkWhitelist(col, from, to); err != nil {
		return err
	}
	if err := l.state.SetAssetApproval(asset, tokenID, [20]byte{}, false); err != nil {
		return err
	}
	return l.state.SetAssetOwner(asset, tokenID, to)
}

// TransferQuantity moves units of a quantity-bearing token id between holders
// on behalf of the operator.
func (l *Ledger) TransferQuantity(operator, asset [20]byte, tokenID uint64, from, to [20]byte, quantity uint64) error {
	col, err := l.loadCollection(asset)
	if err != nil {
		return err
	}
	if col.SingleUnit {
		return fmt.Errorf("assets: quantity transfer requires a quantity-bearing collection")
	}
	if quantity == 0 {
		return nil
	}
	allowed, err := l.operatorAllowed(asset, from, operator)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotApproved
	}
	if err := l.checkWhitelist(col, from, to); err != nil {
		return err
	}
	fromBalance, err := l.state.AssetBalance(asset, from, tokenID)
	if err != nil {
		return err
	}
	if fromBalance < quantity {
		return ErrInsufficientUnits
	}
	toBalance, err := l.state.AssetBalance(asset, to, tokenID)
	if err != nil {
		return err
	}
	if err := l.state.SetAssetBalance(asset, from, tokenID, fromBalance-quantity); err != nil {
		return err
	}
	return l.state.SetAssetBalance(asset, to, tokenID, toBalance+quantity)
}
