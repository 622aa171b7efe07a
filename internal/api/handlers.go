package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/pools"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/repository"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/staking"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

// HistoryReader reads recorded pool snapshots.
type HistoryReader interface {
	History(ctx context.Context, poolID string, limit int) ([]repository.Snapshot, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	staking    *staking.Service
	history    HistoryReader
	readiness  map[string]Pinger
	wsHub      *ws.Hub
	sseHandler *ws.SSEHandler
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewHandler(
	stakingSvc *staking.Service,
	history HistoryReader,
	readiness map[string]Pinger,
	wsHub *ws.Hub,
	sseHandler *ws.SSEHandler,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		staking:    stakingSvc,
		history:    history,
		readiness:  readiness,
		wsHub:      wsHub,
		sseHandler: sseHandler,
		logger:     logger,
		now:        time.Now,
	}
}

func toPoolDTO(p pools.Pool) PoolDTO {
	return PoolDTO{
		PoolID:          p.ID,
		Name:            p.Name,
		StakeSymbol:     p.StakeSymbol,
		RewardSymbol:    p.RewardSymbol,
		BoostCurve:      string(p.Curve),
		Decimals:        p.Decimals,
		RewardDecimals:  p.RewardDecimals,
		UnlockWindowSec: p.UnlockWindowSec,
		MinPeriodDays:   p.MinPeriodDays,
		MaxPeriodDays:   p.MaxPeriodDays,
	}
}

// Pool endpoints
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	all := h.staking.Pools().Catalog().All()
	dto := PoolListDTO{Pools: make([]PoolDTO, 0, len(all))}
	for _, p := range all {
		dto.Pools = append(dto.Pools, toPoolDTO(p))
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolId")
	pool, err := h.staking.Pools().Pool(poolID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	agg, err := h.staking.Pools().Aggregate(r.Context(), pool.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, PoolDetailDTO{
		PoolDTO:       toPoolDTO(pool),
		TotalStaked:   agg.TotalStaked.String(),
		YearlyRewards: agg.YearlyRewards.String(),
		BaseAPR:       calc.BaseAPR(agg),
		AsOf:          h.now().Unix(),
	})
}

func (h *Handler) GetPoolHistory(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolId")
	if _, err := h.staking.Pools().Pool(poolID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "snapshot recording is disabled")
		return
	}

	limit := repository.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer")
			return
		}
		limit = n
	}

	snapshots, err := h.history.History(r.Context(), poolID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "HISTORY_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, HistoryDTO{PoolID: poolID, Snapshots: snapshots})
}

// Projection endpoints
func (h *Handler) GetAprPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.staking.AprPreview(r.Context(), chi.URLParam(r, "poolId"), q.Get("address"), q.Get("period"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateProjection(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if _, ok := calc.ParseAction(action); !ok {
		h.writeError(w, http.StatusBadRequest, "INVALID_ACTION", "action must be one of stake, add, extend, renew")
		return
	}

	var req ProjectionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	res, err := h.staking.Preview(r.Context(), staking.PreviewRequest{
		PoolID:              req.PoolID,
		Action:              action,
		Address:             req.Address,
		Amount:              req.Amount,
		PeriodDays:          req.PeriodDays,
		ExistingStakeAmount: req.ExistingStakeAmount,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Unlock endpoints
func (h *Handler) GetUnlock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nowMs := h.now().UnixMilli()
	if v := q.Get("now"); v != "" {
		nowMs = queryInt(v)
	}

	window := calc.ComputeUnlockWindow(
		queryInt(q.Get("stakingPeriod")),
		queryInt(q.Get("lastOperationTime")),
		queryInt(q.Get("unlockWindow")),
		nowMs,
	)
	h.writeJSON(w, http.StatusOK, UnlockDTO{
		UnlockWindow:      window,
		RemainingLockDays: calc.FormatWithPlaces(calc.RemainingLockDays(window, nowMs), 2),
		Countdown:         calc.Countdown(window, nowMs),
		AsOf:              nowMs,
	})
}

// queryInt reads an integer parameter; anything unparsable counts as 0.
func queryInt(v string) int64 {
	return calc.ParseInt64(v)
}

func (h *Handler) GetUserUnlock(w http.ResponseWriter, r *http.Request) {
	st, err := h.staking.UnlockStatus(r.Context(), chi.URLParam(r, "poolId"), chi.URLParam(r, "address"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// Liquidity endpoint
func (h *Handler) EstimateShare(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, ShareDTO{Share: h.staking.Share(req.Tokens)})
}

// Decimal endpoints
func (h *Handler) ScaleUp(w http.ResponseWriter, r *http.Request) {
	h.scale(w, r, calc.ScaleUp)
}

func (h *Handler) ScaleDown(w http.ResponseWriter, r *http.Request) {
	h.scale(w, r, calc.ScaleDown)
}

// scale passes decimals through as a string: empty means 18, a long string
// is a literal multiplier.
func (h *Handler) scale(w http.ResponseWriter, r *http.Request, fn func(amount any, decimals any) decimal.Decimal) {
	q := r.URL.Query()
	amount := q.Get("amount")
	decimals := q.Get("decimals")

	h.writeJSON(w, http.StatusOK, ScaleDTO{
		Amount:   amount,
		Decimals: decimals,
		Value:    fn(amount, decimals).String(),
	})
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, dep := range h.readiness {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warnw("Readiness check failed", "dependency", name, "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "NOT_READY", name+" unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// WebSocket endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleWebSocket(w, r)
}

// SSE endpoint
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseHandler.HandleSSE(w, r)
}

// Utility methods
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pools.ErrPoolNotFound):
		h.writeError(w, http.StatusNotFound, "POOL_NOT_FOUND", err.Error())
	case errors.Is(err, staking.ErrInvalidAction):
		h.writeError(w, http.StatusBadRequest, "INVALID_ACTION", err.Error())
	default:
		h.writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
