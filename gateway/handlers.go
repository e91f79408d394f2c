package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/cloudx-io/nftescrow/core"
	"github.com/cloudx-io/nftescrow/enclaveapi"
)

const maxBodyBytes = 1 << 20

// Handler maps the REST surface onto enclave requests.
type Handler struct {
	enclave EnclaveClient
	metrics *Metrics
	logger  *slog.Logger
}

func NewHandler(enclave EnclaveClient, metrics *Metrics, logger *slog.Logger) *Handler {
	return &Handler{enclave: enclave, metrics: metrics, logger: logger}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auctions", h.CreateAuction).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id:[0-9]+}", h.GetAuction).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id:[0-9]+}/bids", h.PlaceBid).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id:[0-9]+}/end", h.EndAuction).Methods(http.MethodPost)
	api.HandleFunc("/prices/{asset}", h.GetPrice).Methods(http.MethodGet)
	api.HandleFunc("/prices/{asset}/feed", h.SetPriceFeed).Methods(http.MethodPut)
	api.HandleFunc("/feeds/{feed}/price", h.SetFeedPrice).Methods(http.MethodPost)
	api.HandleFunc("/balances/{account}", h.GetBalance).Methods(http.MethodGet)
	api.HandleFunc("/admin/time", h.AdvanceTime).Methods(http.MethodPost)
	api.HandleFunc("/admin/snapshot", h.ExportSnapshot).Methods(http.MethodGet)

	router.Use(h.requestIDMiddleware)
	router.Use(h.metrics.middleware)
	return router
}

type requestIDKey struct{}

func (h *Handler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		h.logger.Debug("http request", "request_id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ErrorResponse is returned for requests that never produced an enclave response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, RequestID: requestID(r.Context())})
}

// statusForCode maps enclave error codes to HTTP statuses. Engine codes are
// resolved back to their sentinel errors first.
func statusForCode(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case "bad_request":
		return http.StatusBadRequest
	}
	err, ok := core.ErrorForCode(code)
	if !ok {
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(err, core.ErrInvalidDuration), errors.Is(err, core.ErrInvalidPrice),
		errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrAmountMismatch):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEnded), errors.Is(err, core.ErrNotExpired),
		errors.Is(err, core.ErrBidTooLow), errors.Is(err, core.ErrTransferRejected):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoPriceFeed), errors.Is(err, core.ErrBadPrice), errors.Is(err, core.ErrStalePrice):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// forward sends req to the enclave and writes its response. okStatus is
// used when the enclave accepted the request.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, reqType string, req any, okStatus int) {
	var resp enclaveapi.Response
	if err := h.enclave.Call(r.Context(), req, &resp); err != nil {
		h.metrics.observeCall(reqType, "error")
		h.logger.Error("enclave call failed", "request_id", requestID(r.Context()), "type", reqType, "error", err)
		respondError(w, r, http.StatusBadGateway, "enclave unavailable")
		return
	}
	if !resp.Success {
		h.metrics.observeCall(reqType, "rejected")
		h.metrics.observeRejection(resp.ErrorCode)
		respondJSON(w, statusForCode(resp.ErrorCode), resp)
		return
	}
	h.metrics.observeCall(reqType, "ok")
	respondJSON(w, okStatus, resp)
}

// decodeBody reads a JSON body into req. An empty body leaves req untouched.
func decodeBody(r *http.Request, req any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func auctionID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
}

// assetParam accepts "native" for the native asset.
func assetParam(s string) string {
	if strings.EqualFold(s, "native") {
		return ""
	}
	return s
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var pong enclaveapi.PingResponse
	if err := h.enclave.Call(r.Context(), map[string]string{"type": enclaveapi.TypePing}, &pong); err != nil {
		h.metrics.observeCall(enclaveapi.TypePing, "error")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	h.metrics.observeCall(enclaveapi.TypePing, "ok")
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  "gateway",
		"enclave":  pong.Message,
		"auctions": pong.Auctions,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req enclaveapi.CreateAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Type = enclaveapi.TypeCreate
	h.forward(w, r, req.Type, req, http.StatusCreated)
}

func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid auction id")
		return
	}
	req := enclaveapi.GetAuctionRequest{Type: enclaveapi.TypeGetAuction, AuctionID: id}
	h.forward(w, r, req.Type, req, http.StatusOK)
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid auction id")
		return
	}
	var req enclaveapi.BidRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Type = enclaveapi.TypeBid
	req.AuctionID = id
	h.forward(w, r, req.Type, req, http.StatusCreated)
}

func (h *Handler) EndAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid auction id")
		return
	}
	var req enclaveapi.EndAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Type = enclaveapi.TypeEnd
	req.AuctionID = id
	h.forward(w, r, req.Type, req, http.StatusOK)
}

func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	req := enclaveapi.GetPriceRequest{Type: enclaveapi.TypeGetPrice, Asset: assetParam(mux.Vars(r)["asset"])}
	h.forward(w, r, req.Type, req, http.StatusOK)
}

func (h *Handler) SetPriceFeed(w http.ResponseWriter, r *http.Request) {
	var req enclaveapi.SetPriceFeedRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Type = enclaveapi.TypeSetPriceFeed
	req.Asset = assetParam(mux.Vars(r)["asset"])
	h.forward(w, r, req.Type, req, http.StatusOK)
}

func (h *Handler) SetFeedPrice(w http.ResponseWriter, r *http.Request) {
	var req enclaveapi.SetFeedPriceRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Type = enclaveapi.TypeSetFeedPrice
	req.Feed = mux.Vars(r)["feed"]
	h.forward(w, r, req.Type, req, http.StatusOK)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	req := enclaveapi.GetBalanceRequest{
		Type:    enclaveapi.TypeGetBalance,
		Account: mux.Vars(r)["account"],
		Asset:   assetParam(r.URL.Query().Get("asset")),
	}
	h.forward(w, r, req.Type, req, http.StatusOK)
}

func (h *Handler) AdvanceTime(w http.ResponseWriter, r *http.Request) {
	var req enclaveapi.AdvanceTimeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Type = enclaveapi.TypeAdvanceTime
	h.forward(w, r, req.Type, req, http.StatusOK)
}

func (h *Handler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, enclaveapi.TypeExport, map[string]string{"type": enclaveapi.TypeExport}, http.StatusOK)
}
