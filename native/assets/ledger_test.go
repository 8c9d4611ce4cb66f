package assets

import (
	"errors"
	"testing"

	nativecommon "dantemarket/native/common"
)

type ownerKey struct {
	asset   [20]byte
	tokenID uint64
}

type balanceKey struct {
	asset   [20]byte
	holder  [20]byte
	tokenID uint64
}

type operatorKey struct {
	asset    [20]byte
	owner    [20]byte
	operator [20]byte
}

type allowKey struct {
	asset [20]byte
	addr  [20]byte
}

type mockState struct {
	collections map[[20]byte]*Collection
	owners      map[ownerKey][20]byte
	balances    map[balanceKey]uint64
	approvals   map[ownerKey][20]byte
	operators   map[operatorKey]bool
	allowlist   map[allowKey]bool
}

func newMockState() *mockState {
	return &mockState{
		collections: make(map[[20]byte]*Collection),
		owners:      make(map[ownerKey][20]byte),
		balances:    make(map[balanceKey]uint64),
		approvals:   make(map[ownerKey][20]byte),
		operators:   make(map[operatorKey]bool),
		allowlist:   make(map[allowKey]bool),
	}
}

func (m *mockState) CollectionGet(addr [20]byte) (*Collection, bool, error) {
	col, ok := m.collections[addr]
	if !ok {
		return nil, false, nil
	}
	return col.Clone(), true, nil
}

func (m *mockState) CollectionPut(c *Collection) error {
	m.collections[c.Address] = c.Clone()
	return nil
}

func (m *mockState) AssetOwner(asset [20]byte, tokenID uint64) ([20]byte, bool, error) {
	owner, ok := m.owners[ownerKey{asset, tokenID}]
	return owner, ok, nil
}

func (m *mockState) SetAssetOwner(asset [20]byte, tokenID uint64, owner [20]byte) error {
	m.owners[ownerKey{asset, tokenID}] = owner
	return nil
}

func (m *mockState) AssetBalance(asset, holder [20]byte, tokenID uint64) (uint64, error) {
	return m.balances[balanceKey{asset, holder, tokenID}], nil
}

func (m *mockState) SetAssetBalance(asset, holder [20]byte, tokenID uint64, amount uint64) error {
	m.balances[balanceKey{asset, holder, tokenID}] = amount
	return nil
}

func (m *mockState) AssetApproval(asset [20]byte, tokenID uint64) ([20]byte, bool, error) {
	spender, ok := m.approvals[ownerKey{asset, tokenID}]
	return spender, ok, nil
}

func (m *mockState) SetAssetApproval(asset [20]byte, tokenID uint64, spender [20]byte, approved bool) error {
	if !approved {
		delete(m.approvals, ownerKey{asset, tokenID})
		return nil
	}
	m.approvals[ownerKey{asset, tokenID}] = spender
	return nil
}

func (m *mockState) AssetOperator(asset, owner, operator [20]byte) (bool, error) {
	return m.operators[operatorKey{asset, owner, operator}], nil
}

func (m *mockState) SetAssetOperator(asset, owner, operator [20]byte, approved bool) error {
	m.operators[operatorKey{asset, owner, operator}] = approved
	return nil
}

func (m *mockState) AssetAllowlisted(asset, addr [20]byte) (bool, error) {
	return m.allowlist[allowKey{asset, addr}], nil
}

func (m *mockState) SetAssetAllowlisted(asset, addr [20]byte, allowed bool) error {
	m.allowlist[allowKey{asset, addr}] = allowed
	return nil
}

func testAddr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func newTestLedger(t *testing.T, admin [20]byte) (*Ledger, *mockState) {
	t.Helper()
	state := newMockState()
	roles := nativecommon.NewStaticRoles()
	roles.Grant(nativecommon.RoleAdmin, admin)
	roles.Grant(nativecommon.RoleMinter, admin)
	ledger := NewLedger()
	ledger.SetState(state)
	ledger.SetRoles(roles)
	return ledger, state
}

func TestCreateCollectionRequiresAdmin(t *testing.T) {
	admin := testAddr(0x01)
	stranger := testAddr(0x02)
	ledger, _ := newTestLedger(t, admin)
	if _, err := ledger.CreateCollection(stranger, "heroes", true, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	col, err := ledger.CreateCollection(admin, "heroes", true, 0)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if !col.WhitelistMode {
		t.Fatal("whitelist mode should default to enabled")
	}
	if _, err := ledger.CreateCollection(admin, "heroes", true, 0); !errors.Is(err, ErrCollectionExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestSingleUnitMintAndCap(t *testing.T) {
	admin := testAddr(0x01)
	holder := testAddr(0x02)
	ledger, _ := newTestLedger(t, admin)
	col, err := ledger.CreateCollection(admin, "heroes", true, 2)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := ledger.Mint(admin, col.Address, holder, 0, 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(admin, col.Address, holder, 0, 1); !errors.Is(err, ErrTokenAlreadyMinted) {
		t.Fatalf("expected already-minted error, got %v", err)
	}
	if err := ledger.Mint(admin, col.Address, holder, 1, 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(admin, col.Address, holder, 2, 1); !errors.Is(err, ErrMintCapExceeded) {
		t.Fatalf("expected cap error, got %v", err)
	}
	owner, err := ledger.OwnerOf(col.Address, 1)
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if owner != holder {
		t.Fatalf("expected holder to own token 1")
	}
}

func TestWhitelistGateBlocksTransfers(t *testing.T) {
	admin := testAddr(0x01)
	seller := testAddr(0x02)
	buyer := testAddr(0x03)
	market := testAddr(0x04)
	ledger, _ := newTestLedger(t, admin)
	col, err := ledger.CreateCollection(admin, "heroes", true, 0)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := ledger.Mint(admin, col.Address, seller, 7, 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// Owner-to-owner transfer with no allow-listed party is rejected.
	if err := ledger.TransferUnit(seller, col.Address, 7, seller, buyer); !errors.Is(err, ErrTransferRestricted) {
		t.Fatalf("expected restricted transfer, got %v", err)
	}
	if err := ledger.AddWhitelist(admin, col.Address, market); err != nil {
		t.Fatalf("add whitelist: %v", err)
	}
	// Approval is still required for a third-party operator.
	if err := ledger.TransferUnit(market, col.Address, 7, seller, market); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected approval error, got %v", err)
	}
	if err := ledger.Approve(seller, col.Address, 7, market); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferUnit(market, col.Address, 7, seller, market); err != nil {
		t.Fatalf("transfer into custody: %v", err)
	}
	owner, err := ledger.OwnerOf(col.Address, 7)
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if owner != market {
		t.Fatal("expected market to hold the token")
	}
	// Approval was consumed by the transfer.
	if err := ledger.TransferUnit(seller, col.Address, 7, market, seller); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected approval error after consumption, got %v", err)
	}
	// The allow-listed market can hand the token onward.
	if err := ledger.TransferUnit(market, col.Address, 7, market, buyer); err != nil {
		t.Fatalf("transfer out of custody: %v", err)
	}
}

func TestQuantityTransfers(t *testing.T) {
	admin := testAddr(0x01)
	seller := testAddr(0x02)
	market := testAddr(0x04)
	ledger, _ := newTestLedger(t, admin)
	col, err := ledger.CreateCollection(admin, "items", false, 0)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := ledger.Mint(admin, col.Address, seller, 1, 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.AddWhitelist(admin, col.Address, market); err != nil {
		t.Fatalf("add whitelist: %v", err)
	}
	if err := ledger.SetApprovalForAll(seller, col.Address, market, true); err != nil {
		t.Fatalf("approval for all: %v", err)
	}
	if err := ledger.TransferQuantity(market, col.Address, 1, seller, market, 150); !errors.Is(err, ErrInsufficientUnits) {
		t.Fatalf("expected insufficient units, got %v", err)
	}
	if err := ledger.TransferQuantity(market, col.Address, 1, seller, market, 100); err != nil {
		t.Fatalf("quantity transfer: %v", err)
	}
	balance, err := ledger.BalanceOf(col.Address, market, 1)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected market balance 100, got %d", balance)
	}
}
