package rpc

import (
	"net/http"

	"dantemarket/core/types"
	"dantemarket/native/market"
)

type marketAssetParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
}

type marketCreateSaleParams struct {
	Seller     string `json:"seller"`
	Asset      string `json:"asset"`
	TokenID    uint64 `json:"tokenId"`
	Quantity   uint64 `json:"quantity"`
	SingleUnit bool   `json:"singleUnit"`
	EndTime    int64  `json:"endTime"`
	BasePrice  string `json:"basePrice"`
}

type marketBidParams struct {
	Bidder    string `json:"bidder"`
	AuctionID uint64 `json:"auctionId"`
	Amount    string `json:"amount"`
}

type marketActorParams struct {
	Caller    string `json:"caller"`
	AuctionID uint64 `json:"auctionId"`
}

type marketMassCancelParams struct {
	Caller     string   `json:"caller"`
	AuctionIDs []uint64 `json:"auctionIds"`
}

type marketAuctionIDsParams struct {
	AuctionIDs []uint64 `json:"auctionIds"`
}

type marketAuctionIDParams struct {
	AuctionID uint64 `json:"auctionId"`
}

type marketEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type auctionJSON struct {
	ID            uint64 `json:"id"`
	Seller        string `json:"seller"`
	AssetContract string `json:"assetContract"`
	TokenID       uint64 `json:"tokenId"`
	Quantity      uint64 `json:"quantity"`
	SingleUnit    bool   `json:"singleUnit"`
	EndTime       int64  `json:"endTime"`
	CreatedAt     int64  `json:"createdAt"`
	BasePrice     string `json:"basePrice"`
	HighestBid    string `json:"highestBid,omitempty"`
	HighestBidder string `json:"highestBidder,omitempty"`
	Status        string `json:"status"`
}

type eventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type feeResult struct {
	SellerFeeBps uint32 `json:"sellerFeeBps"`
	BuyerFeeBps  uint32 `json:"buyerFeeBps"`
}

func auctionToJSON(a *market.Auction) *auctionJSON {
	if a == nil {
		return nil
	}
	out := &auctionJSON{
		ID:            a.ID,
		Seller:        formatAddress(a.Seller),
		AssetContract: formatAddress(a.AssetContract),
		TokenID:       a.TokenID,
		Quantity:      a.Quantity,
		SingleUnit:    a.SingleUnit,
		EndTime:       a.EndTime,
		CreatedAt:     a.CreatedAt,
		BasePrice:     a.BasePrice.String(),
		Status:        a.Status.String(),
	}
	if a.HasBid() {
		out.HighestBid = a.HighestBid.String()
		out.HighestBidder = formatAddress(a.HighestBidder)
	}
	return out
}

func (s *Server) handleMarketAddAsset(w http.ResponseWriter, req *RPCRequest) {
	var params marketAssetParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseBech32Address(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.AddAsset(caller, asset); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"enabled": true})
}

func (s *Server) handleMarketAssetEnabled(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Asset string `json:"asset"`
	}
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseBech32Address(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	enabled, err := s.engine.AssetEnabled(asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"enabled": enabled})
}

func (s *Server) handleMarketCreateSale(w http.ResponseWriter, req *RPCRequest) {
	var params marketCreateSaleParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseBech32Address(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseBech32Address(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	basePrice, err := parsePositiveBigInt(params.BasePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	auction, err := s.engine.CreateSale(seller, params.SingleUnit, asset, params.TokenID, params.Quantity, params.EndTime, basePrice)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, auctionToJSON(auction))
}

func (s *Server) handleMarketBid(w http.ResponseWriter, req *RPCRequest) {
	var params marketBidParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	bidder, err := parseBech32Address(params.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Bid(bidder, params.AuctionID, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "accepted"})
}

func (s *Server) handleMarketAcceptOffer(w http.ResponseWriter, req *RPCRequest) {
	var params marketActorParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.AcceptOffer(caller, params.AuctionID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "settled"})
}

func (s *Server) handleMarketBuy(w http.ResponseWriter, req *RPCRequest) {
	var params marketActorParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Buy(buyer, params.AuctionID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "settled"})
}

func (s *Server) handleMarketCancelAuction(w http.ResponseWriter, req *RPCRequest) {
	var params marketActorParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.CancelAuction(caller, params.AuctionID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "cancelled"})
}

func (s *Server) handleMarketMassCancelAuctions(w http.ResponseWriter, req *RPCRequest) {
	var params marketMassCancelParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if len(params.AuctionIDs) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "auctionIds must not be empty")
		return
	}
	if err := s.engine.MassCancelAuctions(caller, params.AuctionIDs); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int{"cancelled": len(params.AuctionIDs)})
}

func (s *Server) handleMarketGetOpenAuctions(w http.ResponseWriter, req *RPCRequest) {
	ids, err := s.engine.OpenAuctions()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.SetOpenAuctions(len(ids))
	writeResult(w, req.ID, ids)
}

func (s *Server) handleMarketGetAuctions(w http.ResponseWriter, req *RPCRequest) {
	var params marketAuctionIDsParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	auctions, err := s.engine.Auctions(params.AuctionIDs)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]*auctionJSON, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, auctionToJSON(a))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleMarketGetAuction(w http.ResponseWriter, req *RPCRequest) {
	var params marketAuctionIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	auction, err := s.engine.Auction(params.AuctionID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, auctionToJSON(auction))
}

func (s *Server) handleMarketAuctionFee(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, feeResult{
		SellerFeeBps: s.engine.AuctionFee(),
		BuyerFeeBps:  s.engine.BuyerFee(),
	})
}

func (s *Server) handleMarketListEvents(w http.ResponseWriter, req *RPCRequest) {
	var params marketEventsParams
	if len(req.Params) > 0 {
		if err := singleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	if s.recorder == nil {
		writeResult(w, req.ID, []eventJSON{})
		return
	}
	recorded := s.recorder.List(params.Prefix, params.Limit)
	out := make([]eventJSON, 0, len(recorded))
	for _, evt := range recorded {
		entry := eventJSON{Type: evt.EventType()}
		if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
			if inner := carrier.Event(); inner != nil {
				entry.Attributes = inner.Attributes
			}
		}
		out = append(out, entry)
	}
	writeResult(w, req.ID, out)
}
