package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"dantemarket/core/types"
	"dantemarket/native/assets"
	"dantemarket/native/market"
	"dantemarket/storage"
)

// Manager persists every ledger the marketplace node needs - accounts, the
// settlement token, asset collections and the auction book - in a single
// key-value store. It satisfies the state interfaces of the native engines.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager wraps the database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

// --- accounts ---

// GetAccount loads the account record, returning a zeroed account when the
// address has never been touched.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc := &types.Account{}
	ok, err := m.getJSON(accountKey(addr), acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return acc.EnsureDefaults(), nil
}

// PutAccount stores the account record.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(accountKey(addr), account.EnsureDefaults())
}

// --- settlement token ---

func (m *Manager) TokenAllowance(owner, spender [20]byte) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var amount big.Int
	ok, err := m.getJSON(tokenAllowanceKey(owner, spender), &amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &amount, nil
}

func (m *Manager) SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.putJSON(tokenAllowanceKey(owner, spender), amount)
}

func (m *Manager) TokenSupply() (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var supply big.Int
	ok, err := m.getJSON([]byte(keyTokenSupply), &supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &supply, nil
}

func (m *Manager) SetTokenSupply(amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.putJSON([]byte(keyTokenSupply), amount)
}

// --- auction book ---

func (m *Manager) AuctionPut(a *market.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sanitized, err := market.SanitizeAuction(a)
	if err != nil {
		return err
	}
	return m.putJSON(auctionKey(sanitized.ID), sanitized)
}

func (m *Manager) AuctionGet(id uint64) (*market.Auction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := &market.Auction{}
	ok, err := m.getJSON(auctionKey(id), a)
	if err != nil || !ok {
		return nil, false, err
	}
	return a, true, nil
}

// AuctionNextID hands out monotonically increasing auction ids starting at 1.
// Ids are never reused, including across restarts.
func (m *Manager) AuctionNextID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next uint64
	ok, err := m.getJSON([]byte(keyAuctionNextID), &next)
	if err != nil {
		return 0, err
	}
	if !ok {
		next = 1
	}
	if err := m.putJSON([]byte(keyAuctionNextID), next+1); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *Manager) openIDsLocked() ([]uint64, error) {
	var ids []uint64
	if _, err := m.getJSON([]byte(keyOpenAuctions), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// OpenAuctionAdd appends the id to the open book, preserving creation order.
func (m *Manager) OpenAuctionAdd(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, err := m.openIDsLocked()
	if err != nil {
		return err
	}
	for _, open := range ids {
		if open == id {
			return nil
		}
	}
	return m.putJSON([]byte(keyOpenAuctions), append(ids, id))
}

func (m *Manager) OpenAuctionRemove(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, err := m.openIDsLocked()
	if err != nil {
		return err
	}
	for i, open := range ids {
		if open == id {
			return m.putJSON([]byte(keyOpenAuctions), append(ids[:i], ids[i+1:]...))
		}
	}
	return nil
}

func (m *Manager) OpenAuctionIDs() ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, err := m.openIDsLocked()
	if err != nil {
		return nil, err
	}
	return append([]uint64(nil), ids...), nil
}

// --- marketplace asset registry ---

func (m *Manager) AssetEnabled(asset [20]byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var enabled bool
	ok, err := m.getJSON(assetEnabledKey(asset), &enabled)
	if err != nil {
		return false, err
	}
	return ok && enabled, nil
}

func (m *Manager) SetAssetEnabled(asset [20]byte, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(assetEnabledKey(asset), enabled)
}

// --- asset collections ---

func (m *Manager) CollectionGet(addr [20]byte) (*assets.Collection, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col := &assets.Collection{}
	ok, err := m.getJSON(collectionKey(addr), col)
	if err != nil || !ok {
		return nil, false, err
	}
	return col, true, nil
}

func (m *Manager) CollectionPut(c *assets.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c == nil {
		return fmt.Errorf("state: nil collection")
	}
	return m.putJSON(collectionKey(c.Address), c)
}

func (m *Manager) AssetOwner(asset [20]byte, tokenID uint64) ([20]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var owner [20]byte
	ok, err := m.getJSON(assetOwnerKey(asset, tokenID), &owner)
	if err != nil {
		return [20]byte{}, false, err
	}
	return owner, ok, nil
}

func (m *Manager) SetAssetOwner(asset [20]byte, tokenID uint64, owner [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(assetOwnerKey(asset, tokenID), owner)
}

func (m *Manager) AssetBalance(asset, holder [20]byte, tokenID uint64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var balance uint64
	if _, err := m.getJSON(assetBalanceKey(asset, holder, tokenID), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (m *Manager) SetAssetBalance(asset, holder [20]byte, tokenID uint64, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(assetBalanceKey(asset, holder, tokenID), amount)
}

func (m *Manager) AssetApproval(asset [20]byte, tokenID uint64) ([20]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var spender [20]byte
	ok, err := m.getJSON(assetApprovalKey(asset, tokenID), &spender)
	if err != nil {
		return [20]byte{}, false, err
	}
	return spender, ok, nil
}

func (m *Manager) SetAssetApproval(asset [20]byte, tokenID uint64, spender [20]byte, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !approved {
		return m.db.Delete(assetApprovalKey(asset, tokenID))
	}
	return m.putJSON(assetApprovalKey(asset, tokenID), spender)
}

func (m *Manager) AssetOperator(asset, owner, operator [20]byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var approved bool
	if _, err := m.getJSON(assetOperatorKey(asset, owner, operator), &approved); err != nil {
		return false, err
	}
	return approved, nil
}

func (m *Manager) SetAssetOperator(asset, owner, operator [20]byte, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(assetOperatorKey(asset, owner, operator), approved)
}

func (m *Manager) AssetAllowlisted(asset, addr [20]byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var allowed bool
	if _, err := m.getJSON(assetAllowlistKey(asset, addr), &allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

func (m *Manager) SetAssetAllowlisted(asset, addr [20]byte, allowed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(assetAllowlistKey(asset, addr), allowed)
}
