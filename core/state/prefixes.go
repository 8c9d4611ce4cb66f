package state

import (
	"encoding/binary"
	"encoding/hex"
)

// Key prefixes for the marketplace state. Every record type gets its own
// namespace so iteration-free lookups stay unambiguous.
const (
	prefixAccount        = "acct/"
	prefixTokenAllowance = "token/allowance/"
	keyTokenSupply       = "token/supply"
	prefixAuction        = "market/auction/"
	keyAuctionNextID     = "market/auction-next-id"
	keyOpenAuctions      = "market/open-auctions"
	prefixAssetEnabled   = "market/asset-enabled/"
	prefixCollection     = "assets/collection/"
	prefixAssetOwner     = "assets/owner/"
	prefixAssetBalance   = "assets/balance/"
	prefixAssetApproval  = "assets/approval/"
	prefixAssetOperator  = "assets/operator/"
	prefixAssetAllowlist = "assets/allowlist/"
)

func addrHex(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func u64Hex(v uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return hex.EncodeToString(buf[:])
}

func accountKey(addr []byte) []byte {
	return []byte(prefixAccount + hex.EncodeToString(addr))
}

func tokenAllowanceKey(owner, spender [20]byte) []byte {
	return []byte(prefixTokenAllowance + addrHex(owner) + "/" + addrHex(spender))
}

func auctionKey(id uint64) []byte {
	return []byte(prefixAuction + u64Hex(id))
}

func assetEnabledKey(asset [20]byte) []byte {
	return []byte(prefixAssetEnabled + addrHex(asset))
}

func collectionKey(addr [20]byte) []byte {
	return []byte(prefixCollection + addrHex(addr))
}

func assetOwnerKey(asset [20]byte, tokenID uint64) []byte {
	return []byte(prefixAssetOwner + addrHex(asset) + "/" + u64Hex(tokenID))
}

func assetBalanceKey(asset, holder [20]byte, tokenID uint64) []byte {
	return []byte(prefixAssetBalance + addrHex(asset) + "/" + addrHex(holder) + "/" + u64Hex(tokenID))
}

func assetApprovalKey(asset [20]byte, tokenID uint64) []byte {
	return []byte(prefixAssetApproval + addrHex(asset) + "/" + u64Hex(tokenID))
}

func assetOperatorKey(asset, owner, operator [20]byte) []byte {
	return []byte(prefixAssetOperator + addrHex(asset) + "/" + addrHex(owner) + "/" + addrHex(operator))
}

func assetAllowlistKey(asset, addr [20]byte) []byte {
	return []byte(prefixAssetAllowlist + addrHex(asset) + "/" + addrHex(addr))
}
