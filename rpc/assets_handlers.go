package rpc

import (
	"net/http"
	"strings"

	"dantemarket/native/assets"
)

type assetsCreateCollectionParams struct {
	Caller     string `json:"caller"`
	Name       string `json:"name"`
	SingleUnit bool   `json:"singleUnit"`
	MintCap    uint64 `json:"mintCap"`
}

type assetsMintParams struct {
	Caller   string `json:"caller"`
	Asset    string `json:"asset"`
	To       string `json:"to"`
	TokenID  uint64 `json:"tokenId"`
	Quantity uint64 `json:"quantity"`
}

type assetsApproveParams struct {
	Caller  string `json:"caller"`
	Asset   string `json:"asset"`
	TokenID uint64 `json:"tokenId"`
	Spender string `json:"spender"`
}

type assetsOperatorParams struct {
	Caller   string `json:"caller"`
	Asset    string `json:"asset"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type assetsWhitelistParams struct {
	Caller  string `json:"caller"`
	Asset   string `json:"asset"`
	Address string `json:"address"`
}

type assetsWhitelistModeParams struct {
	Caller  string `json:"caller"`
	Asset   string `json:"asset"`
	Enabled bool   `json:"enabled"`
}

type assetsTokenParams struct {
	Asset   string `json:"asset"`
	TokenID uint64 `json:"tokenId"`
}

type assetsBalanceParams struct {
	Asset   string `json:"asset"`
	Holder  string `json:"holder"`
	TokenID uint64 `json:"tokenId"`
}

type collectionJSON struct {
	Address    string `json:"address"`
	Name       string `json:"name"`
	SingleUnit bool   `json:"singleUnit"`
	MintCap    uint64 `json:"mintCap"`
	Minted     uint64 `json:"minted"`
	Whitelist  bool   `json:"whitelistMode"`
}

func (s *Server) handleAssetsCreateCollection(w http.ResponseWriter, req *RPCRequest) {
	var params assetsCreateCollectionParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(params.Name) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "name is required")
		return
	}
	col, err := s.assets.CreateCollection(caller, params.Name, params.SingleUnit, params.MintCap)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, collectionJSON{
		Address:    formatAddress(col.Address),
		Name:       col.Name,
		SingleUnit: col.SingleUnit,
		MintCap:    col.MintCap,
		Minted:     col.Minted,
		Whitelist:  col.WhitelistMode,
	})
}

func (s *Server) handleAssetsMint(w http.ResponseWriter, req *RPCRequest) {
	var params assetsMintParams
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
	to, err := parseBech32Address(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.assets.Mint(caller, asset, to, params.TokenID, params.Quantity); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "minted"})
}

func (s *Server) handleAssetsApprove(w http.ResponseWriter, req *RPCRequest) {
	var params assetsApproveParams
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
	spender, err := parseBech32Address(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.assets.Approve(caller, asset, params.TokenID, spender); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "approved"})
}

func (s *Server) handleAssetsSetApprovalForAll(w http.ResponseWriter, req *RPCRequest) {
	var params assetsOperatorParams
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
	operator, err := parseBech32Address(params.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.assets.SetApprovalForAll(caller, asset, operator, params.Approved); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"approved": params.Approved})
}

func (s *Server) handleAssetsAddWhitelist(w http.ResponseWriter, req *RPCRequest) {
	s.handleAssetsWhitelistChange(w, req, true)
}

func (s *Server) handleAssetsRemoveWhitelist(w http.ResponseWriter, req *RPCRequest) {
	s.handleAssetsWhitelistChange(w, req, false)
}

func (s *Server) handleAssetsWhitelistChange(w http.ResponseWriter, req *RPCRequest, add bool) {
	var params assetsWhitelistParams
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
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if add {
		err = s.assets.AddWhitelist(caller, asset, addr)
	} else {
		err = s.assets.RemoveWhitelist(caller, asset, addr)
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"whitelisted": add})
}

func (s *Server) handleAssetsSetWhitelistMode(w http.ResponseWriter, req *RPCRequest) {
	var params assetsWhitelistModeParams
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
	if err := s.assets.SetWhitelistMode(caller, asset, params.Enabled); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"whitelistMode": params.Enabled})
}

func (s *Server) handleAssetsOwnerOf(w http.ResponseWriter, req *RPCRequest) {
	var params assetsTokenParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseBech32Address(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := s.assets.OwnerOf(asset, params.TokenID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": formatAddress(owner)})
}

func (s *Server) handleAssetsBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params assetsBalanceParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseBech32Address(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	holder, err := parseBech32Address(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.assets.BalanceOf(asset, holder, params.TokenID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"balance": balance})
}

func (s *Server) handleAssetsCollectionAddress(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Name string `json:"name"`
	}
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(params.Name) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "name is required")
		return
	}
	addr := assets.CollectionAddress(params.Name)
	writeResult(w, req.ID, map[string]string{"address": formatAddress(addr)})
}
