package api

import (
	"net/http"

	"github.com/Emmet-Finance/Bridge-Data/internal/circuitbreaker"
	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/oracle"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
)

type chainResponse struct {
	ChainID   types.ChainID   `json:"chainId"`
	Supported bool            `json:"supported"`
	Chain     model.ChainSpec `json:"chain"`
}

type setChainsRequest struct {
	ChainIDs []types.ChainID  `json:"chainIds"`
	Chains   []model.ChainSpec `json:"chains"`
}

type tokenResponse struct {
	Symbol    string          `json:"symbol"`
	Supported bool            `json:"supported"`
	Token     model.TokenSpec `json:"token"`
}

type strategyBody struct {
	Foreign  []types.StepCode `json:"foreign"`
	Incoming []types.StepCode `json:"incoming"`
	Local    []types.StepCode `json:"local"`
}

type strategyResponse struct {
	Route model.StrategyKey `json:"route"`
	strategyBody
}

type updateAdminRequest struct {
	NewAdmin string `json:"newAdmin"`
}

type priceRequest struct {
	Price string `json:"price"`
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	id, err := chainIDVar(r)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chainResponse{
		ChainID:   id,
		Supported: s.registry.IsChainSupported(id),
		Chain:     model.NewChainSpec(s.registry.GetChain(id)),
	})
}

func (s *Server) handleChainSupported(w http.ResponseWriter, r *http.Request) {
	id, err := chainIDVar(r)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chainId":   id,
		"supported": s.registry.IsChainSupported(id),
	})
}

func (s *Server) handleForeignFee(w http.ResponseWriter, r *http.Request) {
	id, err := chainIDVar(r)
	if err != nil {
		fail(w, err)
		return
	}
	step, err := types.ParseStepCode(mux.Vars(r)["step"])
	if err != nil {
		fail(w, badRequest("%v", err))
		return
	}
	fee, err := s.registry.GetForeignFee(id, step)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chainId": id,
		"step":    step,
		"name":    step.String(),
		"fee":     fee.Dec(),
	})
}

func (s *Server) handleSetChain(w http.ResponseWriter, r *http.Request) {
	id, err := chainIDVar(r)
	if err != nil {
		fail(w, err)
		return
	}
	var spec model.ChainSpec
	caller, err := s.decodeSigned(r, &spec)
	if err != nil {
		fail(w, err)
		return
	}
	entry, err := spec.Entry()
	if err != nil {
		fail(w, badRequest("%v", err))
		return
	}
	if err := s.registry.SetChain(r.Context(), caller, id, entry); err != nil {
		fail(w, err)
		return
	}
	s.metrics.writes.WithLabelValues("chain").Inc()
	writeJSON(w, http.StatusOK, chainResponse{ChainID: id, Supported: true, Chain: model.NewChainSpec(entry)})
}

func (s *Server) handleSetChains(w http.ResponseWriter, r *http.Request) {
	var req setChainsRequest
	caller, err := s.decodeSigned(r, &req)
	if err != nil {
		fail(w, err)
		return
	}
	entries := make([]model.ChainEntry, 0, len(req.Chains))
	for i, spec := range req.Chains {
		entry, err := spec.Entry()
		if err != nil {
			fail(w, badRequest("chains[%d]: %v", i, err))
			return
		}
		entries = append(entries, entry)
	}
	if err := s.registry.SetChains(r.Context(), caller, req.ChainIDs, entries); err != nil {
		fail(w, err)
		return
	}
	s.metrics.writes.WithLabelValues("chain").Add(float64(len(entries)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"chainIds": req.ChainIDs})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	writeJSON(w, http.StatusOK, tokenResponse{
		Symbol:    symbol,
		Supported: s.registry.IsTokenSupported(symbol),
		Token:     model.NewTokenSpec(s.registry.GetToken(symbol)),
	})
}

func (s *Server) handleTokenSupported(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"supported": s.registry.IsTokenSupported(symbol),
	})
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	var spec model.TokenSpec
	caller, err := s.decodeSigned(r, &spec)
	if err != nil {
		fail(w, err)
		return
	}
	entry, err := spec.Entry()
	if err != nil {
		fail(w, badRequest("%v", err))
		return
	}
	if err := s.registry.SetToken(r.Context(), caller, symbol, entry.Target,
		entry.TokenDecimals, entry.PriceDecimals, entry.PriceFeed); err != nil {
		fail(w, err)
		return
	}
	s.metrics.writes.WithLabelValues("token").Inc()
	writeJSON(w, http.StatusOK, tokenResponse{Symbol: symbol, Supported: true, Token: model.NewTokenSpec(entry)})
}

func routeVars(r *http.Request) (model.StrategyKey, error) {
	id, err := chainIDVar(r)
	if err != nil {
		return model.StrategyKey{}, err
	}
	vars := mux.Vars(r)
	return model.StrategyKey{ChainID: id, FromToken: vars["fromToken"], ToToken: vars["toToken"]}, nil
}

func (s *Server) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	key, err := routeVars(r)
	if err != nil {
		fail(w, err)
		return
	}
	foreign, incoming, local := s.registry.GetStrategies(key.ChainID, key.FromToken, key.ToToken)
	writeJSON(w, http.StatusOK, strategyResponse{
		Route:        key,
		strategyBody: strategyBody{Foreign: foreign, Incoming: incoming, Local: local},
	})
}

func (s *Server) handleSetStrategies(w http.ResponseWriter, r *http.Request) {
	key, err := routeVars(r)
	if err != nil {
		fail(w, err)
		return
	}
	var body strategyBody
	caller, err := s.decodeSigned(r, &body)
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.registry.SetStrategies(r.Context(), caller, key.ChainID, key.FromToken, key.ToToken,
		body.Foreign, body.Incoming, body.Local); err != nil {
		fail(w, err)
		return
	}
	s.metrics.writes.WithLabelValues("strategy").Inc()

	foreign, incoming, local := s.registry.GetStrategies(key.ChainID, key.FromToken, key.ToToken)
	writeJSON(w, http.StatusOK, strategyResponse{
		Route:        key,
		strategyBody: strategyBody{Foreign: foreign, Incoming: incoming, Local: local},
	})
}

func (s *Server) handleGetAdmin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"admin": s.registry.Admin().Hex(),
		"role":  s.registry.RoleOf(s.registry.Admin()).Hex(),
	})
}

func (s *Server) handleUpdateAdmin(w http.ResponseWriter, r *http.Request) {
	var req updateAdminRequest
	caller, err := s.decodeSigned(r, &req)
	if err != nil {
		fail(w, err)
		return
	}
	if !common.IsHexAddress(req.NewAdmin) {
		fail(w, badRequest("invalid newAdmin %q", req.NewAdmin))
		return
	}
	newAdmin := common.HexToAddress(req.NewAdmin)
	if err := s.registry.UpdateAdmin(r.Context(), caller, newAdmin); err != nil {
		fail(w, err)
		return
	}
	s.metrics.writes.WithLabelValues("admin").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"admin": newAdmin.Hex()})
}

func (s *Server) handleRole(w http.ResponseWriter, r *http.Request) {
	account, err := addressVar(r, "account")
	if err != nil {
		fail(w, err)
		return
	}
	role := s.registry.RoleOf(account)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account.Hex(),
		"role":    role.Hex(),
		"isAdmin": s.registry.RequireAdmin(account) == nil,
	})
}

type feedInfo struct {
	Address     string `json:"address"`
	Description string `json:"description"`
	Decimals    uint8  `json:"decimals"`
	Circuit     string `json:"circuit,omitempty"`
}

func (s *Server) feedStatus() []feedInfo {
	addrs := s.opts.Feeds.Addresses()
	out := make([]feedInfo, 0, len(addrs))
	for _, addr := range addrs {
		feed, err := s.opts.Feeds.Feed(addr)
		if err != nil {
			continue
		}
		info := feedInfo{Address: addr.Hex(), Description: feed.Description(), Decimals: feed.Decimals()}
		if g, ok := feed.(*oracle.GuardedFeed); ok {
			info.Circuit = g.State().String()
		}
		out = append(out, info)
	}
	return out
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	if s.opts.Feeds == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": []feedInfo{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": s.feedStatus()})
}

// adminFeed authenticates an admin request against a feed in the directory
func (s *Server) adminFeed(r *http.Request, v interface{}) (oracle.PriceFeed, error) {
	addr, err := addressVar(r, "address")
	if err != nil {
		return nil, err
	}
	caller, err := s.decodeSigned(r, v)
	if err != nil {
		return nil, err
	}
	if err := s.registry.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if s.opts.Feeds == nil {
		return nil, oracle.ErrOracleUnavailable
	}
	return s.opts.Feeds.Feed(addr)
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	feed, err := s.adminFeed(r, &req)
	if err != nil {
		fail(w, err)
		return
	}
	price, err := uint256.FromDecimal(req.Price)
	if err != nil {
		fail(w, badRequest("invalid price %q", req.Price))
		return
	}

	inner := feed
	if g, ok := feed.(*oracle.GuardedFeed); ok {
		inner = g.PriceFeed
	}
	static, ok := inner.(*oracle.StaticFeed)
	if !ok {
		fail(w, badRequest("feed %s is not operator-updated", feed.Description()))
		return
	}
	static.UpdatePrice(price)
	s.metrics.writes.WithLabelValues("price").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"description": feed.Description(),
		"price":       price.Dec(),
	})
}

func (s *Server) handleResetFeed(w http.ResponseWriter, r *http.Request) {
	var empty struct{}
	feed, err := s.adminFeed(r, &empty)
	if err != nil {
		fail(w, err)
		return
	}
	g, ok := feed.(*oracle.GuardedFeed)
	if !ok {
		fail(w, badRequest("feed %s has no circuit breaker", feed.Description()))
		return
	}
	g.Reset()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"description": feed.Description(),
		"circuit":     circuitbreaker.StateClosed.String(),
	})
}
