package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/metrics"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/pools"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/store"
	"go.uber.org/zap"
)

const heartbeatInterval = 30 * time.Second

type SSEHandler struct {
	resolver *Resolver
	cache    *store.Cache
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	interval time.Duration
	now      func() time.Time
}

func NewSSEHandler(resolver *Resolver, cache *store.Cache, m *metrics.Metrics, logger *zap.SugaredLogger, interval time.Duration) *SSEHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &SSEHandler{
		resolver: resolver,
		cache:    cache,
		metrics:  m,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// HandleSSE streams the unlock countdown until the client disconnects.
func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	params, err := ParseCountdownParams(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frame, channels, err := h.resolver.Resolve(ctx, params)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, pools.ErrPoolNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if h.metrics != nil {
		h.metrics.IncrementStreams(ctx)
		defer h.metrics.DecrementStreams(context.Background())
	}
	h.logger.Debugw("SSE countdown established", "pool", params.PoolID, "address", params.Address)

	var updates <-chan *store.Message
	if len(channels) > 0 {
		sub := h.cache.Subscribe(ctx, channels...)
		defer sub.Close()
		updates = sub.Channel()
	}

	h.sendEvent(w, "connected", "0", nil)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	wasUnlocked := h.emitFrame(w, frame(h.now().UnixMilli()), false)
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": h.now().Unix(),
			})

		case <-ticker.C:
			wasUnlocked = h.emitFrame(w, frame(h.now().UnixMilli()), wasUnlocked)

		case msg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			var data interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil {
				h.logger.Warnw("Failed to parse message payload", "error", err)
				continue
			}
			h.sendEvent(w, channelToEventType(msg.Channel), msg.Channel, data)
		}
	}
}

// emitFrame writes a countdown event and an unlocked event on the locked to
// unlocked transition. It returns the new unlocked state.
func (h *SSEHandler) emitFrame(w http.ResponseWriter, f Frame, wasUnlocked bool) bool {
	id := strconv.FormatInt(f.NowMs, 10)
	h.sendEvent(w, "countdown", id, f)
	if f.IsUnlocked && !wasUnlocked {
		h.sendEvent(w, "unlocked", id, f)
	}
	return f.IsUnlocked
}

func channelToEventType(channel string) string {
	switch {
	case strings.HasPrefix(channel, store.ChannelPool+":"):
		return "pool_update"
	default:
		return "update"
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType, id string, data interface{}) {
	payload := []byte("{}")
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			h.logger.Errorw("Failed to marshal SSE data", "error", err)
			return
		}
		payload = b
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "id: %s\n", id)
	fmt.Fprintf(w, "data: %s\n\n", payload)

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
