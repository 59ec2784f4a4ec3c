package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nft_market/internal/domain"
	"nft_market/internal/engine"
	"nft_market/internal/execution"
	"nft_market/internal/infra/storage"
	"nft_market/internal/market"
	"nft_market/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const maxTxBody = 64 << 10

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func addressParam(r *http.Request, name string) (common.Address, error) {
	v := r.PathValue(name)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, v)
	}
	return common.HexToAddress(v), nil
}

func itemParams(r *http.Request) (common.Address, *uint256.Int, error) {
	coll, err := addressParam(r, "collection")
	if err != nil {
		return common.Address{}, nil, err
	}
	id, err := uint256.FromDecimal(r.PathValue("id"))
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("invalid item id %q", r.PathValue("id"))
	}
	return coll, id, nil
}

// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"next_seq":  s.engine.NextSeq(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GET /api/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// GET /api/methods
func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, engine.Methods())
}

// POST /api/tx
//
// A reverted transaction is still sequenced and answered with 200; the
// receipt status tells the outcome. A bad signature gets 401 and a stale or
// future nonce 409; neither is sequenced.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var tx engine.Tx
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTxBody))
	if err := dec.Decode(&tx); err != nil {
		s.metrics.RecordRejected()
		writeError(w, http.StatusBadRequest, "invalid transaction body: "+err.Error())
		return
	}

	receipt, err := s.engine.Submit(r.Context(), tx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, receipt)
	case errors.Is(err, engine.ErrUnknownMethod), errors.Is(err, engine.ErrInvalidParams), errors.Is(err, engine.ErrMissingSender):
		s.metrics.RecordRejected()
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrInvalidSignature):
		s.metrics.RecordRejected()
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, engine.ErrNonceMismatch):
		s.metrics.RecordRejected()
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrSequencerStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusGatewayTimeout, err.Error())
	}
}

// GET /api/nonces/{account}
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	account, err := addressParam(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"nonce":   s.engine.Nonce(account),
	})
}

// GET /api/tx/{hash}
func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}
	rec, err := s.store.GetTx(r.Context(), r.PathValue("hash"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type itemView struct {
	Collection common.Address    `json:"collection"`
	ItemID     *uint256.Int      `json:"itemId"`
	Owner      *common.Address   `json:"owner,omitempty"`
	Active     domain.SaleKind   `json:"active"`
	Item       domain.MarketItem `json:"item"`
}

// GET /api/items/{collection}/{id}
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	coll, id, err := itemParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view := itemView{Collection: coll, ItemID: id}
	s.engine.View(func(m *market.Market, c *execution.Chain) {
		view.Active = m.ActiveSale(coll, id)
		view.Item = m.GetLatestMarketItem(coll, id)
		if ledger, err := c.Collection(coll); err == nil {
			if owner, err := ledger.OwnerOf(id); err == nil {
				view.Owner = &owner
			}
		}
	})
	writeJSON(w, http.StatusOK, view)
}

// GET /api/auctions/{collection}/{id}
func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	coll, id, err := itemParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var a domain.EnglishAuction
	s.engine.View(func(m *market.Market, _ *execution.Chain) {
		a = m.GetLatestEnglishAuction(coll, id)
	})
	writeJSON(w, http.StatusOK, a)
}

// GET /api/fees/{token}
func (s *Server) handleFee(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var collected *uint256.Int
	s.engine.View(func(m *market.Market, _ *execution.Chain) {
		collected = m.CollectedFee(token)
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"collected": collected,
		"formatted": units.FormatEther(collected),
	})
}

// GET /api/tokens/{token}
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var mode domain.TokenMode
	s.engine.View(func(m *market.Market, _ *execution.Chain) {
		mode = m.TokenMode(token)
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"mode":     mode.String(),
		"accepted": mode != domain.TokenNotAccepted,
	})
}

// GET /api/balances/{token}/{account}
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := addressParam(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var balance, allowance *uint256.Int
	var lookupErr error
	s.engine.View(func(m *market.Market, c *execution.Chain) {
		ledger, err := c.Token(token)
		if err != nil {
			lookupErr = err
			return
		}
		balance = ledger.BalanceOf(account)
		allowance = ledger.Allowance(account, m.Address())
	})
	if lookupErr != nil {
		writeError(w, http.StatusNotFound, lookupErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":            token,
		"account":          account,
		"balance":          balance,
		"market_allowance": allowance,
	})
}

// GET /api/logs?name=BidMade&from_seq=10&limit=50
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}
	q := r.URL.Query()
	f := storage.LogFilter{Name: q.Get("name"), Limit: storage.DefaultLogLimit}
	if v := q.Get("from_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from_seq")
			return
		}
		f.FromSeq = n
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			f.Limit = n
		}
	}

	recs, err := s.store.ListLogs(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type logView struct {
		Seq   uint64          `json:"seq"`
		Index int             `json:"index"`
		Name  string          `json:"name"`
		Data  json.RawMessage `json:"data"`
	}
	out := make([]logView, 0, len(recs))
	for _, rec := range recs {
		data := json.RawMessage(rec.Data)
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		out = append(out, logView{Seq: rec.Seq, Index: rec.Index, Name: rec.Name, Data: data})
	}
	writeJSON(w, http.StatusOK, out)
}
