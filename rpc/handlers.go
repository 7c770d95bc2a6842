package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"cyberswap/core/types"
	"cyberswap/indexer"
	"cyberswap/native/escrow"
)

// ExecuteRequest delivers a message with optional attached native funds.
type ExecuteRequest struct {
	Sender types.Address     `json:"sender"`
	Funds  []escrow.Coin     `json:"funds,omitempty"`
	Msg    escrow.ExecuteMsg `json:"msg"`
}

// SendTokenRequest sends fungible tokens into escrow with a hook message.
type SendTokenRequest struct {
	Sender   types.Address   `json:"sender"`
	Contract types.Address   `json:"contract"`
	Amount   *uint256.Int    `json:"amount"`
	Msg      json.RawMessage `json:"msg"`
}

// SendNFTRequest sends an NFT into escrow with a hook message.
type SendNFTRequest struct {
	Sender     types.Address   `json:"sender"`
	Collection types.Address   `json:"collection"`
	TokenID    string          `json:"token_id"`
	Msg        json.RawMessage `json:"msg"`
}

// ApprovalRequest grants or revokes an NFT approval.
type ApprovalRequest struct {
	Owner      types.Address     `json:"owner"`
	Collection types.Address     `json:"collection"`
	TokenID    string            `json:"token_id"`
	Spender    types.Address     `json:"spender"`
	Expires    escrow.Expiration `json:"expires"`
}

// AmountResponse carries a balance as a decimal string.
type AmountResponse struct {
	Amount string `json:"amount"`
}

// HeightResponse carries the last committed height.
type HeightResponse struct {
	Height uint64 `json:"height"`
}

// EventsResponse wraps journaled events.
type EventsResponse struct {
	Events []types.Event `json:"events"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("decode request: %v", err))
		return false
	}
	if _, err := dec.Token(); err != io.EOF {
		writeError(w, http.StatusBadRequest, "bad_request", "request body must hold a single JSON value")
		return false
	}
	return true
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !s.decode(w, r, &req) || !s.authorize(w, r, req.Sender) {
		return
	}
	res, err := s.backend.Execute(r.Context(), escrow.Info{Sender: req.Sender, Funds: req.Funds}, req.Msg)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSendToken(w http.ResponseWriter, r *http.Request) {
	var req SendTokenRequest
	if !s.decode(w, r, &req) || !s.authorize(w, r, req.Sender) {
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "amount is required")
		return
	}
	res, err := s.backend.SendToken(r.Context(), req.Sender, req.Contract, req.Amount, req.Msg)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSendNFT(w http.ResponseWriter, r *http.Request) {
	var req SendNFTRequest
	if !s.decode(w, r, &req) || !s.authorize(w, r, req.Sender) {
		return
	}
	res, err := s.backend.SendNFT(r.Context(), req.Sender, req.Collection, req.TokenID, req.Msg)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if !s.decode(w, r, &req) || !s.authorize(w, r, req.Owner) {
		return
	}
	res, err := s.backend.Approve(r.Context(), req.Owner, req.Collection, req.TokenID, req.Spender, req.Expires)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if !s.decode(w, r, &req) || !s.authorize(w, r, req.Owner) {
		return
	}
	res, err := s.backend.Revoke(r.Context(), req.Owner, req.Collection, req.TokenID, req.Spender)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var msg escrow.QueryMsg
	if !s.decode(w, r, &msg) {
		return
	}
	s.query(w, r, msg)
}

func (s *Server) query(w http.ResponseWriter, r *http.Request, msg escrow.QueryMsg) {
	out, err := s.backend.Query(r.Context(), msg)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, escrow.QueryMsg{Config: &struct{}{}})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, escrow.QueryMsg{Admin: &struct{}{}})
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request) {
	height, err := s.backend.Height(r.Context())
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HeightResponse{Height: height})
}

// handleListings lists an owner's listings, or all listings without ?owner=.
func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("owner"))
	if raw == "" {
		s.query(w, r, escrow.QueryMsg{AllListings: &struct{}{}})
		return
	}
	owner, ok := addressParam(w, "owner", raw)
	if !ok {
		return
	}
	s.query(w, r, escrow.QueryMsg{ListingsByOwner: &escrow.OwnerRef{Owner: owner}})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s.query(w, r, escrow.QueryMsg{Listing: &escrow.ListingRef{ListingID: id}})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	page := uint64(1)
	if raw := r.URL.Query().Get("page"); raw != "" {
		var ok bool
		if page, ok = uintParam(w, "page", raw); !ok {
			return
		}
	}
	s.query(w, r, escrow.QueryMsg{Market: &escrow.PageRef{Page: page}})
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, "owner", chi.URLParam(r, "owner"))
	if !ok {
		return
	}
	s.query(w, r, escrow.QueryMsg{Buckets: &escrow.OwnerRef{Owner: owner}})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}
	bal, err := s.backend.Balance(r.Context(), addr, chi.URLParam(r, "denom"))
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse(bal))
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	contract, ok := addressParam(w, "contract", chi.URLParam(r, "contract"))
	if !ok {
		return
	}
	holder, ok := addressParam(w, "holder", chi.URLParam(r, "holder"))
	if !ok {
		return
	}
	bal, err := s.backend.TokenBalance(r.Context(), contract, holder)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse(bal))
}

func (s *Server) handleNFT(w http.ResponseWriter, r *http.Request) {
	collection, ok := addressParam(w, "collection", chi.URLParam(r, "collection"))
	if !ok {
		return
	}
	access, err := s.backend.NFT(r.Context(), collection, chi.URLParam(r, "tokenID"))
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

// handleEvents searches the event journal by type, listing, bucket and
// sequence cursor.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "no_indexer", "event indexing is disabled")
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{Type: q.Get("type")}
	if raw := q.Get("listing"); raw != "" {
		id, ok := uintParam(w, "listing", raw)
		if !ok {
			return
		}
		filter.ListingID = &id
	}
	if raw := q.Get("bucket"); raw != "" {
		id, ok := uintParam(w, "bucket", raw)
		if !ok {
			return
		}
		filter.BucketID = &id
	}
	if raw := q.Get("after"); raw != "" {
		seq, ok := uintParam(w, "after", raw)
		if !ok {
			return
		}
		filter.AfterSeq = seq
	}
	if raw := q.Get("limit"); raw != "" {
		limit, ok := uintParam(w, "limit", raw)
		if !ok {
			return
		}
		filter.Limit = int(min(limit, uint64(indexer.DefaultLimit)))
	}
	found, err := s.events.Find(r.Context(), filter)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: found})
}

func amountResponse(v *uint256.Int) AmountResponse {
	if v == nil {
		return AmountResponse{Amount: "0"}
	}
	return AmountResponse{Amount: v.Dec()}
}

func addressParam(w http.ResponseWriter, name, raw string) (types.Address, bool) {
	addr, err := types.ParseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("%s: %v", name, err))
		return types.Address{}, false
	}
	return addr, true
}

func uintParam(w http.ResponseWriter, name, raw string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("%s must be an unsigned integer", name))
		return 0, false
	}
	return v, true
}
