package token

import (
	"errors"
	"fmt"
	"math/big"

	"dantemarket/core/events"
	"dantemarket/core/types"
	nativecommon "dantemarket/native/common"
)

var (
	errNilState = errors.New("token ledger: state not configured")

	// ErrInsufficientBalance is returned when a transfer exceeds the payer's
	// balance.
	ErrInsufficientBalance = errors.New("token: transfer amount exceeds balance")
	// ErrInsufficientAllowance is returned when a delegated transfer exceeds
	// the spender's approved amount.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrSupplyCapExceeded is returned when minting would push total supply
	// past the configured cap.
	ErrSupplyCapExceeded = errors.New("token: supply cap exceeded")
	// ErrUnauthorizedMinter is returned when the mint caller lacks the minter
	// role.
	ErrUnauthorizedMinter = errors.New("token: caller is not a minter")
)

// State is the persistence surface the ledger requires.
type State interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	TokenAllowance(owner, spender [20]byte) (*big.Int, error)
	SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error
	TokenSupply() (*big.Int, error)
	SetTokenSupply(amount *big.Int) error
}

type tokenEvent struct {
	evt *types.Event
}

func (e tokenEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tokenEvent) Event() *types.Event { return e.evt }

// Ledger implements the fungible settlement token: balances, allowances and
// capped role-gated minting.
type Ledger struct {
	state     State
	roles     nativecommon.RoleView
	supplyCap *big.Int
	emitter   events.Emitter
}

// NewLedger creates a token ledger. A nil supply cap disables the cap check.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state State) { l.state = state }

// SetRoles configures the capability view used for mint authorization.
func (l *Ledger) SetRoles(roles nativecommon.RoleView) { l.roles = roles }

// SetSupplyCap configures the maximum total supply. Nil disables the cap.
func (l *Ledger) SetSupplyCap(cap *big.Int) {
	if cap == nil {
		l.supplyCap = nil
		return
	}
	l.supplyCap = new(big.Int).Set(cap)
}

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
	l.emitter.Emit(tokenEvent{evt: evt})
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// BalanceOf returns the settlement-token balance for the address.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return acc.EnsureDefaults().Balance, nil
}

// Allowance returns the amount the spender may move on behalf of the owner.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance, err := l.state.TokenAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	return cloneAmount(allowance), nil
}

// Approve sets the spender's allowance over the owner's balance, replacing any
// previous approval.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative approval amount")
	}
	return l.state.SetTokenAllowance(owner, spender, amt)
}

// Mint credits freshly issued tokens to the recipient. The caller must hold
// the minter role and the resulting supply must stay within the cap.
func (l *Ledger) Mint(caller, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !nativecommon.Authorized(l.roles, nativecommon.RoleMinter, caller) {
		return ErrUnauthorizedMinter
	}
	amt := cloneAmount(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("token: mint amount must be positive")
	}
	supply, err := l.state.TokenSupply()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(cloneAmount(supply), amt)
	if l.supplyCap != nil && next.Cmp(l.supplyCap) > 0 {
		return ErrSupplyCapExceeded
	}
	acc, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	acc = acc.EnsureDefaults()
	acc.Balance = new(big.Int).Add(acc.Balance, amt)
	if err := l.state.PutAccount(to[:], acc); err != nil {
		return err
	}
	if err := l.state.SetTokenSupply(next); err != nil {
		return err
	}
	l.emit(newMintedEvent(to, amt))
	return nil
}

// Transfer moves value directly between two addresses.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount")
	}
	fromAcc, err := l.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.EnsureDefaults()
	toAcc = toAcc.EnsureDefaults()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := l.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to[:], toAcc)
}

// TransferFrom moves value from the owner to the recipient on behalf of the
// spender, consuming allowance. The allowance check runs before the balance
// check so callers can tell the two rejection reasons apart.
func (l *Ledger) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount")
	}
	allowance, err := l.state.TokenAllowance(owner, spender)
	if err != nil {
		return err
	}
	allowance = cloneAmount(allowance)
	if allowance.Cmp(amt) < 0 {
		return ErrInsufficientAllowance
	}
	ownerAcc, err := l.state.GetAccount(owner[:])
	if err != nil {
		return err
	}
	if ownerAcc.EnsureDefaults().Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.Transfer(owner, to, amt); err != nil {
		return err
	}
	return l.state.SetTokenAllowance(owner, spender, new(big.Int).Sub(allowance, amt))
}
