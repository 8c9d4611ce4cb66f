package assets

import (
	"encoding/hex"
	"strconv"

	"dantemarket/core/types"
)

const (
	EventTypeCollectionCreated = "assets.collection.created"
	EventTypeMinted            = "assets.minted"
	EventTypeWhitelistAdded    = "assets.whitelist.added"
	EventTypeWhitelistRemoved  = "assets.whitelist.removed"
)

func newCollectionCreatedEvent(c *Collection) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["address"] = hex.EncodeToString(c.Address[:])
		attrs["name"] = c.Name
		attrs["singleUnit"] = strconv.FormatBool(c.SingleUnit)
		attrs["mintCap"] = strconv.FormatUint(c.MintCap, 10)
	}
	return &types.Event{Type: EventTypeCollectionCreated, Attributes: attrs}
}

func newMintedEvent(c *Collection, to [20]byte, tokenID, quantity uint64) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["address"] = hex.EncodeToString(c.Address[:])
	}
	attrs["to"] = hex.EncodeToString(to[:])
	attrs["tokenId"] = strconv.FormatUint(tokenID, 10)
	attrs["quantity"] = strconv.FormatUint(quantity, 10)
	return &types.Event{Type: EventTypeMinted, Attributes: attrs}
}

func newWhitelistEvent(eventType string, c *Collection, addr [20]byte) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["address"] = hex.EncodeToString(c.Address[:])
	}
	attrs["account"] = hex.EncodeToString(addr[:])
	return &types.Event{Type: eventType, Attributes: attrs}
}
