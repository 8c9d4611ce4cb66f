package token

import (
	"encoding/hex"
	"math/big"

	"dantemarket/core/types"
)

const (
	// EventTypeMinted is emitted when new supply is issued.
	EventTypeMinted = "token.minted"
)

func newMintedEvent(to [20]byte, amount *big.Int) *types.Event {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return &types.Event{
		Type: EventTypeMinted,
		Attributes: map[string]string{
			"to":     hex.EncodeToString(to[:]),
			"amount": amount.String(),
		},
	}
}
