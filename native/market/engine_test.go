package market

import (
	"errors"
	"math/big"
	"testing"

	"dantemarket/core/events"
	"dantemarket/core/types"
	"dantemarket/native/assets"
	nativecommon "dantemarket/native/common"
	"dantemarket/native/token"
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

type pairKey struct {
	a [20]byte
	b [20]byte
}

// mockState backs the engine and both collaborator ledgers in memory.
type mockState struct {
	auctions      map[uint64]*Auction
	openIDs       []uint64
	nextID        uint64
	enabledAssets map[[20]byte]bool

	accounts   map[[20]byte]*types.Account
	allowances map[pairKey]*big.Int
	supply     *big.Int

	collections map[[20]byte]*assets.Collection
	owners      map[ownerKey][20]byte
	balances    map[balanceKey]uint64
	approvals   map[ownerKey][20]byte
	operators   map[operatorKey]bool
	allowlist   map[pairKey]bool
}

func newMockState() *mockState {
	return &mockState{
		auctions:      make(map[uint64]*Auction),
		nextID:        1,
		enabledAssets: make(map[[20]byte]bool),
		accounts:      make(map[[20]byte]*types.Account),
		allowances:    make(map[pairKey]*big.Int),
		supply:        big.NewInt(0),
		collections:   make(map[[20]byte]*assets.Collection),
		owners:        make(map[ownerKey][20]byte),
		balances:      make(map[balanceKey]uint64),
		approvals:     make(map[ownerKey][20]byte),
		operators:     make(map[operatorKey]bool),
		allowlist:     make(map[pairKey]bool),
	}
}

func (m *mockState) AuctionPut(a *Auction) error {
	sanitized, err := SanitizeAuction(a)
	if err != nil {
		return err
	}
	m.auctions[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) AuctionGet(id uint64) (*Auction, bool, error) {
	a, ok := m.auctions[id]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *mockState) AuctionNextID() (uint64, error) {
	id := m.nextID
	m.nextID++
	return id, nil
}

func (m *mockState) OpenAuctionAdd(id uint64) error {
	m.openIDs = append(m.openIDs, id)
	return nil
}

func (m *mockState) OpenAuctionRemove(id uint64) error {
	for i, open := range m.openIDs {
		if open == id {
			m.openIDs = append(m.openIDs[:i], m.openIDs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockState) OpenAuctionIDs() ([]uint64, error) {
	return append([]uint64(nil), m.openIDs...), nil
}

func (m *mockState) AssetEnabled(asset [20]byte) (bool, error) {
	return m.enabledAssets[asset], nil
}

func (m *mockState) SetAssetEnabled(asset [20]byte, enabled bool) error {
	m.enabledAssets[asset] = enabled
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	if acc, ok := m.accounts[key]; ok {
		return acc.Clone(), nil
	}
	return &types.Account{Balance: big.NewInt(0)}, nil
}

func (m *mockState) PutAccount(addr []byte, acc *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = acc.Clone()
	return nil
}

func (m *mockState) TokenAllowance(owner, spender [20]byte) (*big.Int, error) {
	if amt, ok := m.allowances[pairKey{owner, spender}]; ok {
		return new(big.Int).Set(amt), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error {
	m.allowances[pairKey{owner, spender}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenSupply() (*big.Int, error) {
	return new(big.Int).Set(m.supply), nil
}

func (m *mockState) SetTokenSupply(amount *big.Int) error {
	m.supply = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) CollectionGet(addr [20]byte) (*assets.Collection, bool, error) {
	col, ok := m.collections[addr]
	if !ok {
		return nil, false, nil
	}
	return col.Clone(), true, nil
}

func (m *mockState) CollectionPut(c *assets.Collection) error {
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
	return m.allowlist[pairKey{asset, addr}], nil
}

func (m *mockState) SetAssetAllowlisted(asset, addr [20]byte, allowed bool) error {
	m.allowlist[pairKey{asset, addr}] = allowed
	return nil
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

const (
	testNow      int64 = 1_700_000_000
	testDuration int64 = 86_400
)

type testEnv struct {
	state    *mockState
	engine   *Engine
	tokens   *token.Ledger
	ledger   *assets.Ledger
	recorder *events.Recorder

	admin    [20]byte
	seller   [20]byte
	bidder   [20]byte
	rival    [20]byte
	buyer    [20]byte
	treasury [20]byte

	collection *assets.Collection
	clock      int64
}

func newTestEnv(t *testing.T, singleUnit bool) *testEnv {
	t.Helper()
	env := &testEnv{
		state:    newMockState(),
		recorder: events.NewRecorder(0),
		admin:    newTestAddress(0x01),
		seller:   newTestAddress(0x02),
		bidder:   newTestAddress(0x03),
		rival:    newTestAddress(0x04),
		buyer:    newTestAddress(0x05),
		treasury: newTestAddress(0x06),
		clock:    testNow,
	}

	roles := nativecommon.NewStaticRoles()
	roles.Grant(nativecommon.RoleAdmin, env.admin)
	roles.Grant(nativecommon.RoleMinter, env.admin)

	env.tokens = token.NewLedger()
	env.tokens.SetState(env.state)
	env.tokens.SetRoles(roles)

	env.ledger = assets.NewLedger()
	env.ledger.SetState(env.state)
	env.ledger.SetRoles(roles)

	env.engine = NewEngine()
	env.engine.SetState(env.state)
	env.engine.SetSettlementLedger(env.tokens)
	env.engine.SetAssetCustody(env.ledger)
	env.engine.SetRoles(roles)
	env.engine.SetFeeTreasury(env.treasury)
	env.engine.SetEmitter(env.recorder)
	env.engine.SetNowFunc(func() int64 { return env.clock })
	if err := env.engine.SetFees(200, 200); err != nil {
		t.Fatalf("set fees: %v", err)
	}

	name := "heroes"
	if !singleUnit {
		name = "items"
	}
	col, err := env.ledger.CreateCollection(env.admin, name, singleUnit, 0)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	env.collection = col
	if err := env.ledger.AddWhitelist(env.admin, col.Address, env.engine.Vault()); err != nil {
		t.Fatalf("whitelist vault: %v", err)
	}
	if err := env.engine.AddAsset(env.admin, col.Address); err != nil {
		t.Fatalf("enable asset: %v", err)
	}
	return env
}

// mintAndApprove gives the seller the asset and approves the vault to pull it.
func (env *testEnv) mintAndApprove(t *testing.T, tokenID, quantity uint64) {
	t.Helper()
	if err := env.ledger.Mint(env.admin, env.collection.Address, env.seller, tokenID, quantity); err != nil {
		t.Fatalf("mint asset: %v", err)
	}
	if env.collection.SingleUnit {
		if err := env.ledger.Approve(env.seller, env.collection.Address, tokenID, env.engine.Vault()); err != nil {
			t.Fatalf("approve vault: %v", err)
		}
		return
	}
	if err := env.ledger.SetApprovalForAll(env.seller, env.collection.Address, env.engine.Vault(), true); err != nil {
		t.Fatalf("approve vault: %v", err)
	}
}

func (env *testEnv) fund(t *testing.T, addr [20]byte, balance, allowance int64) {
	t.Helper()
	if balance > 0 {
		if err := env.tokens.Mint(env.admin, addr, big.NewInt(balance)); err != nil {
			t.Fatalf("mint tokens: %v", err)
		}
	}
	if allowance > 0 {
		if err := env.tokens.Approve(addr, env.engine.Vault(), big.NewInt(allowance)); err != nil {
			t.Fatalf("approve tokens: %v", err)
		}
	}
}

func (env *testEnv) createSale(t *testing.T, tokenID, quantity uint64, basePrice int64) *Auction {
	t.Helper()
	a, err := env.engine.CreateSale(env.seller, env.collection.SingleUnit, env.collection.Address, tokenID, quantity, env.clock+testDuration, big.NewInt(basePrice))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return a
}

func (env *testEnv) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	balance, err := env.tokens.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (env *testEnv) eventCount(eventType string) int {
	return len(env.recorder.List(eventType, 0))
}

func TestCreateSaleAuthorizationGates(t *testing.T) {
	env := newTestEnv(t, true)
	endTime := env.clock + testDuration

	// Unknown asset contract fails the registry check.
	other := newTestAddress(0x77)
	if _, err := env.engine.CreateSale(env.seller, true, other, 0, 1, endTime, big.NewInt(100)); !errors.Is(err, ErrAssetNotAuthorized) {
		t.Fatalf("expected registry rejection, got %v", err)
	}

	// Registered asset without vault approval fails the custody pull.
	if err := env.ledger.Mint(env.admin, env.collection.Address, env.seller, 0, 1); err != nil {
		t.Fatalf("mint asset: %v", err)
	}
	_, err := env.engine.CreateSale(env.seller, true, env.collection.Address, 0, 1, endTime, big.NewInt(100))
	if !errors.Is(err, ErrCustodyTransferFailed) {
		t.Fatalf("expected custody failure, got %v", err)
	}
	open, err := env.engine.OpenAuctions()
	if err != nil {
		t.Fatalf("open auctions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("failed listing must not appear in the book, got %v", open)
	}

	// With approval in place the pull succeeds and the asset moves to the
	// vault.
	if err := env.ledger.Approve(env.seller, env.collection.Address, 0, env.engine.Vault()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	a, err := env.engine.CreateSale(env.seller, true, env.collection.Address, 0, 1, endTime, big.NewInt(100))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	owner, err := env.ledger.OwnerOf(env.collection.Address, 0)
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if owner != env.engine.Vault() {
		t.Fatal("asset must sit in engine custody while open")
	}
	open, err = env.engine.OpenAuctions()
	if err != nil {
		t.Fatalf("open auctions: %v", err)
	}
	if len(open) != 1 || open[0] != a.ID {
		t.Fatalf("expected open book [%d], got %v", a.ID, open)
	}
	if env.eventCount(EventTypeAuctionCreated) != 1 {
		t.Fatal("expected one created event")
	}
}

func TestCreateSaleWhitelistRejection(t *testing.T) {
	env := newTestEnv(t, true)
	// Remove the vault from the collection allow-list: the asset contract
	// itself now rejects the custody pull even though the registry allows it.
	if err := env.ledger.RemoveWhitelist(env.admin, env.collection.Address, env.engine.Vault()); err != nil {
		t.Fatalf("remove whitelist: %v", err)
	}
	env.mintAndApprove(t, 0, 1)
	_, err := env.engine.CreateSale(env.seller, true, env.collection.Address, 0, 1, env.clock+testDuration, big.NewInt(100))
	if !errors.Is(err, ErrCustodyTransferFailed) {
		t.Fatalf("expected custody failure, got %v", err)
	}
	if !errors.Is(err, assets.ErrTransferRestricted) {
		t.Fatalf("expected whitelist rejection in the chain, got %v", err)
	}
}

func TestBidIncrementScenario(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	a := env.createSale(t, 0, 1, 1000)

	// Below the 5% opening minimum.
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(1)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected bid-too-low, got %v", err)
	}
	// Meets the minimum but no allowance was granted.
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(50)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	// Allowance without balance.
	if err := env.tokens.Approve(env.bidder, env.engine.Vault(), big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(50)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected funds error, got %v", err)
	}
	env.fund(t, env.bidder, 5000, 0)
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(50)); err != nil {
		t.Fatalf("bid: %v", err)
	}

	current, err := env.engine.Auction(a.ID)
	if err != nil {
		t.Fatalf("auction: %v", err)
	}
	if current.HighestBid.Cmp(big.NewInt(50)) != 0 || current.HighestBidder != env.bidder {
		t.Fatalf("expected highest bid 50 by bidder, got %s", current.HighestBid)
	}

	// The rival must beat 50 by ceil(50*5%) = 3.
	env.fund(t, env.rival, 5000, 5000)
	if err := env.engine.Bid(env.rival, a.ID, big.NewInt(52)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected bid-too-low at 52, got %v", err)
	}
	bidderBefore := env.balance(t, env.bidder)
	if err := env.engine.Bid(env.rival, a.ID, big.NewInt(53)); err != nil {
		t.Fatalf("rival bid: %v", err)
	}

	// Refund invariant: the displaced bidder got their full 50 back.
	bidderAfter := env.balance(t, env.bidder)
	refund := new(big.Int).Sub(bidderAfter, bidderBefore)
	if refund.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected refund of 50, got %s", refund)
	}
	// The vault holds exactly the new high bid.
	if vault := env.balance(t, env.engine.Vault()); vault.Cmp(big.NewInt(53)) != 0 {
		t.Fatalf("expected vault balance 53, got %s", vault)
	}
	if env.eventCount(EventTypeAuctionBid) != 2 {
		t.Fatal("expected two bid events")
	}
}

func TestBidIncrementAtTokenScale(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)

	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	toWei := func(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), wei) }

	a, err := env.engine.CreateSale(env.seller, true, env.collection.Address, 0, 1, env.clock+testDuration, toWei(1000))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := env.tokens.Mint(env.admin, env.bidder, toWei(5000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := env.tokens.Approve(env.bidder, env.engine.Vault(), toWei(5000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.engine.Bid(env.bidder, a.ID, toWei(50)); err != nil {
		t.Fatalf("bid: %v", err)
	}

	if err := env.tokens.Mint(env.admin, env.rival, toWei(5000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := env.tokens.Approve(env.rival, env.engine.Vault(), toWei(5000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// 50 + 4% = 52 fails, 50 + 5% = 52.5 passes.
	fourPct := new(big.Int).Add(toWei(50), new(big.Int).Div(new(big.Int).Mul(toWei(50), big.NewInt(4)), big.NewInt(100)))
	if err := env.engine.Bid(env.rival, a.ID, fourPct); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected bid-too-low at +4%%, got %v", err)
	}
	fivePct := new(big.Int).Add(toWei(50), new(big.Int).Div(new(big.Int).Mul(toWei(50), big.NewInt(5)), big.NewInt(100)))
	if err := env.engine.Bid(env.rival, a.ID, fivePct); err != nil {
		t.Fatalf("expected +5%% bid to pass: %v", err)
	}
}

func TestBidRejectedAfterEndTime(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	a := env.createSale(t, 0, 1, 1000)
	env.fund(t, env.bidder, 5000, 5000)

	env.clock += testDuration
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(100)); !errors.Is(err, ErrAuctionNotOpen) {
		t.Fatalf("expected not-open after end time, got %v", err)
	}
}

func TestAcceptOffer(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	a := env.createSale(t, 0, 1, 1000)

	if err := env.engine.AcceptOffer(env.seller, a.ID); !errors.Is(err, ErrNoBid) {
		t.Fatalf("expected no-bid error, got %v", err)
	}

	env.fund(t, env.bidder, 5000, 5000)
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(100)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := env.engine.AcceptOffer(env.bidder, a.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-seller, got %v", err)
	}

	// Acceptance stays possible after the bidding deadline.
	env.clock += testDuration + 1
	if err := env.engine.AcceptOffer(env.seller, a.ID); err != nil {
		t.Fatalf("accept offer: %v", err)
	}

	// 2% of 100 routes to the treasury, the rest to the seller.
	if fee := env.balance(t, env.treasury); fee.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected treasury fee 2, got %s", fee)
	}
	if proceeds := env.balance(t, env.seller); proceeds.Cmp(big.NewInt(98)) != 0 {
		t.Fatalf("expected seller proceeds 98, got %s", proceeds)
	}
	owner, err := env.ledger.OwnerOf(env.collection.Address, 0)
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if owner != env.bidder {
		t.Fatal("winner must receive the asset")
	}
	if env.eventCount(EventTypeAuctionSettled) != 1 {
		t.Fatal("expected one settled event")
	}
	open, err := env.engine.OpenAuctions()
	if err != nil {
		t.Fatalf("open auctions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("settled auction must leave the open book, got %v", open)
	}
}

func TestBuyExactFunds(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	a := env.createSale(t, 0, 1, 1000)

	env.fund(t, env.buyer, 1000, 1000)
	if err := env.engine.Buy(env.buyer, a.ID); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if fee := env.balance(t, env.treasury); fee.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected fee 20, got %s", fee)
	}
	if proceeds := env.balance(t, env.seller); proceeds.Cmp(big.NewInt(980)) != 0 {
		t.Fatalf("expected proceeds 980, got %s", proceeds)
	}
	if remaining := env.balance(t, env.buyer); remaining.Sign() != 0 {
		t.Fatalf("expected buyer spent out, got %s", remaining)
	}
	owner, err := env.ledger.OwnerOf(env.collection.Address, 0)
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if owner != env.buyer {
		t.Fatal("buyer must receive the asset")
	}
	if env.eventCount(EventTypeAuctionSettled) != 1 {
		t.Fatal("expected one settled event")
	}
}

func TestBuyQuantityListing(t *testing.T) {
	env := newTestEnv(t, false)
	env.mintAndApprove(t, 1, 100)
	a := env.createSale(t, 1, 100, 1000)

	if balance, err := env.ledger.BalanceOf(env.collection.Address, env.seller, 1); err != nil || balance != 0 {
		t.Fatalf("expected seller balance 0 (err %v), got %d", err, balance)
	}
	env.fund(t, env.buyer, 1000, 1000)
	if err := env.engine.Buy(env.buyer, a.ID); err != nil {
		t.Fatalf("buy: %v", err)
	}
	balance, err := env.ledger.BalanceOf(env.collection.Address, env.buyer, 1)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected buyer to hold 100 units, got %d", balance)
	}
}

func TestBuyBlockedOnceBiddingStarted(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	a := env.createSale(t, 0, 1, 1000)

	env.fund(t, env.bidder, 5000, 5000)
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(50)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	env.fund(t, env.buyer, 1000, 1000)
	if err := env.engine.Buy(env.buyer, a.ID); !errors.Is(err, ErrBuyNowUnavailable) {
		t.Fatalf("expected buy-now unavailable, got %v", err)
	}
	// The standing bid is untouched.
	current, err := env.engine.Auction(a.ID)
	if err != nil {
		t.Fatalf("auction: %v", err)
	}
	if current.HighestBid.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("standing bid must survive a rejected buy, got %s", current.HighestBid)
	}
}

func TestCancelAuctionWithActiveBid(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	a := env.createSale(t, 0, 1, 1000)

	env.fund(t, env.bidder, 5000, 5000)
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(50)); err != nil {
		t.Fatalf("bid: %v", err)
	}

	if err := env.engine.CancelAuction(env.rival, a.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for stranger, got %v", err)
	}

	// Seller has no token allowance for the 2% fee: the cancellation aborts
	// and the asset stays in escrow.
	env.fund(t, env.seller, 1000, 0)
	if err := env.engine.CancelAuction(env.seller, a.ID); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	owner, err := env.ledger.OwnerOf(env.collection.Address, 0)
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if owner != env.engine.Vault() {
		t.Fatal("asset must remain in escrow until the fee can be paid")
	}

	if err := env.tokens.Approve(env.seller, env.engine.Vault(), big.NewInt(20)); err != nil {
		t.Fatalf("approve fee: %v", err)
	}
	bidderBefore := env.balance(t, env.bidder)
	if err := env.engine.CancelAuction(env.seller, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Asset back to the seller, bidder refunded in full, fee charged.
	owner, err = env.ledger.OwnerOf(env.collection.Address, 0)
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if owner != env.seller {
		t.Fatal("asset must return to the seller")
	}
	refund := new(big.Int).Sub(env.balance(t, env.bidder), bidderBefore)
	if refund.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected full refund 50, got %s", refund)
	}
	if fee := env.balance(t, env.treasury); fee.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected treasury fee 20, got %s", fee)
	}
	if sellerBalance := env.balance(t, env.seller); sellerBalance.Cmp(big.NewInt(980)) != 0 {
		t.Fatalf("expected seller balance 980 after fee, got %s", sellerBalance)
	}
	open, err := env.engine.OpenAuctions()
	if err != nil {
		t.Fatalf("open auctions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("cancelled auction must leave the open book, got %v", open)
	}
	if env.eventCount(EventTypeAuctionCancelled) != 1 {
		t.Fatal("expected one cancelled event")
	}
}

func TestTerminalStatusRejectsEverything(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	a := env.createSale(t, 0, 1, 1000)
	env.fund(t, env.buyer, 1000, 1000)
	if err := env.engine.Buy(env.buyer, a.ID); err != nil {
		t.Fatalf("buy: %v", err)
	}

	env.fund(t, env.bidder, 5000, 5000)
	if err := env.engine.Bid(env.bidder, a.ID, big.NewInt(5000)); !errors.Is(err, ErrAuctionNotOpen) {
		t.Fatalf("bid on settled auction: %v", err)
	}
	if err := env.engine.AcceptOffer(env.seller, a.ID); !errors.Is(err, ErrAuctionNotOpen) {
		t.Fatalf("accept on settled auction: %v", err)
	}
	if err := env.engine.Buy(env.buyer, a.ID); !errors.Is(err, ErrAuctionNotOpen) {
		t.Fatalf("buy on settled auction: %v", err)
	}
	if err := env.engine.CancelAuction(env.seller, a.ID); !errors.Is(err, ErrAuctionNotOpen) {
		t.Fatalf("cancel on settled auction: %v", err)
	}
}

func TestMassCancelAtomicity(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	env.mintAndApprove(t, 1, 1)
	first := env.createSale(t, 0, 1, 1000)
	second := env.createSale(t, 1, 1, 2000)

	if err := env.engine.MassCancelAuctions(env.seller, []uint64{first.ID, second.ID}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected admin-only batch, got %v", err)
	}
	// One unknown id aborts the whole batch.
	if err := env.engine.MassCancelAuctions(env.admin, []uint64{first.ID, 999}); !errors.Is(err, ErrAuctionNotFound) {
		t.Fatalf("expected not-found abort, got %v", err)
	}
	open, err := env.engine.OpenAuctions()
	if err != nil {
		t.Fatalf("open auctions: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("aborted batch must cancel nothing, got %v", open)
	}

	if err := env.engine.MassCancelAuctions(env.admin, []uint64{first.ID, second.ID}); err != nil {
		t.Fatalf("mass cancel: %v", err)
	}
	open, err = env.engine.OpenAuctions()
	if err != nil {
		t.Fatalf("open auctions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected empty book, got %v", open)
	}
	if env.eventCount(EventTypeAuctionCancelled) != 2 {
		t.Fatal("expected one cancellation event per auction")
	}
	// The batch waives the cancellation fee.
	if fee := env.balance(t, env.treasury); fee.Sign() != 0 {
		t.Fatalf("admin batch must not charge fees, got %s", fee)
	}
	// Assets returned to the seller.
	for tokenID := uint64(0); tokenID < 2; tokenID++ {
		owner, err := env.ledger.OwnerOf(env.collection.Address, tokenID)
		if err != nil {
			t.Fatalf("ownerOf: %v", err)
		}
		if owner != env.seller {
			t.Fatalf("token %d must return to the seller", tokenID)
		}
	}
}

func TestBatchLookupOrderAndMisses(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	env.mintAndApprove(t, 1, 1)
	first := env.createSale(t, 0, 1, 1000)
	second := env.createSale(t, 1, 1, 2000)

	got, err := env.engine.Auctions([]uint64{second.ID, first.ID})
	if err != nil {
		t.Fatalf("auctions: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatal("batch lookup must preserve request order")
	}
	if _, err := env.engine.Auctions([]uint64{first.ID, 42}); !errors.Is(err, ErrAuctionNotFound) {
		t.Fatalf("expected not-found for unknown id, got %v", err)
	}
}

func TestHighestBidMonotonicallyIncreases(t *testing.T) {
	env := newTestEnv(t, true)
	env.mintAndApprove(t, 0, 1)
	a := env.createSale(t, 0, 1, 100)
	env.fund(t, env.bidder, 100_000, 100_000)
	env.fund(t, env.rival, 100_000, 100_000)

	bidders := [][20]byte{env.bidder, env.rival}
	last := big.NewInt(0)
	amount := big.NewInt(5)
	for i := 0; i < 8; i++ {
		if err := env.engine.Bid(bidders[i%2], a.ID, amount); err != nil {
			t.Fatalf("bid %d: %v", i, err)
		}
		current, err := env.engine.Auction(a.ID)
		if err != nil {
			t.Fatalf("auction: %v", err)
		}
		if current.HighestBid.Cmp(last) <= 0 {
			t.Fatalf("highest bid must strictly increase, %s after %s", current.HighestBid, last)
		}
		last = new(big.Int).Set(current.HighestBid)
		// Next bid: double the current high, always above the increment.
		amount = new(big.Int).Mul(last, big.NewInt(2))
	}
}

func TestAddAssetIdempotent(t *testing.T) {
	env := newTestEnv(t, true)
	if err := env.engine.AddAsset(env.seller, env.collection.Address); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected admin-only, got %v", err)
	}
	before := env.eventCount(EventTypeAssetEnabled)
	if err := env.engine.AddAsset(env.admin, env.collection.Address); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	if env.eventCount(EventTypeAssetEnabled) != before {
		t.Fatal("re-enabling must not emit another event")
	}
}
