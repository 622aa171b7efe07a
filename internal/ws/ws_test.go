package ws

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/pools"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/staking"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/store"
	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/memory"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCatalog = `
pools:
  - id: sgr
    boostCurve: "0.002"
    decimals: 8
    rewardDecimals: 8
    unlockWindowSec: 86400
`

func newTestDeps(t *testing.T) (*Resolver, *store.Cache) {
	t.Helper()
	logger := zap.NewNop().Sugar()

	catalog, err := pools.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	cache := store.NewCache(memory.New(0), logger, nil)
	t.Cleanup(func() { cache.Close() })

	src := pools.NewStaticSource()
	src.SetStake("sgr", "0xabc", pools.UserStake{
		Positions:       []calc.StakePosition{{PeriodSec: 30 * calc.SecondsPerDay, StakedAmount: decimal.NewFromInt(1)}},
		LastOperationMs: time.Now().UnixMilli(),
	})

	svc := staking.NewService(pools.NewService(catalog, src, cache, time.Minute, logger), nil, nil, logger)
	return NewResolver(svc), cache
}

func TestParseCountdownParams(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    CountdownParams
		wantErr bool
	}{
		{name: "pool and address", query: "poolId=sgr&address=0xabc", want: CountdownParams{PoolID: "sgr", Address: "0xabc"}},
		{name: "raw", query: "stakingPeriod=60&lastOperationTime=1000&unlockWindow=30", want: CountdownParams{StakingPeriodSec: 60, LastOperationMs: 1000, UnlockWindowSec: 30}},
		{name: "pool without address", query: "poolId=sgr", wantErr: true},
		{name: "raw incomplete", query: "stakingPeriod=60", wantErr: true},
		{name: "raw not a number counts as zero", query: "stakingPeriod=x&lastOperationTime=1&unlockWindow=1", want: CountdownParams{LastOperationMs: 1, UnlockWindowSec: 1}},
		{name: "raw fraction and overflow", query: "stakingPeriod=60.9&lastOperationTime=1&unlockWindow=1e30", want: CountdownParams{StakingPeriodSec: 60, LastOperationMs: 1, UnlockWindowSec: math.MaxInt64}},
		{name: "empty", query: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			got, err := ParseCountdownParams(q)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver(t *testing.T) {
	resolver, _ := newTestDeps(t)
	ctx := context.Background()

	frame, channels, err := resolver.Resolve(ctx, CountdownParams{StakingPeriodSec: 60, LastOperationMs: 0, UnlockWindowSec: 30})
	require.NoError(t, err)
	assert.Empty(t, channels)
	f := frame(15_000)
	assert.False(t, f.IsUnlocked)
	assert.Equal(t, int64(60_000), f.UnlockTimestampMs)
	assert.Equal(t, calc.CountdownParts{Seconds: 45}, f.Countdown)

	frame, channels, err = resolver.Resolve(ctx, CountdownParams{PoolID: "sgr", Address: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, []string{store.PoolChannel("sgr")}, channels)
	f = frame(time.Now().UnixMilli())
	assert.Equal(t, "sgr", f.PoolID)
	assert.False(t, f.IsUnlocked)
	assert.Equal(t, int64(29), f.Countdown.Days)

	_, _, err = resolver.Resolve(ctx, CountdownParams{PoolID: "nope", Address: "0xabc"})
	assert.ErrorIs(t, err, pools.ErrPoolNotFound)
}

func readEvents(t *testing.T, body *bufio.Scanner, want ...string) {
	t.Helper()
	pending := make(map[string]bool, len(want))
	for _, w := range want {
		pending[w] = true
	}
	for len(pending) > 0 && body.Scan() {
		line := body.Text()
		if strings.HasPrefix(line, "event: ") {
			delete(pending, strings.TrimPrefix(line, "event: "))
		}
	}
	assert.Empty(t, pending, "events not received")
}

func TestSSECountdown(t *testing.T) {
	resolver, cache := newTestDeps(t)
	h := NewSSEHandler(resolver, cache, nil, zap.NewNop().Sugar(), 10*time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?stakingPeriod=0&lastOperationTime=0&unlockWindow=0", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	readEvents(t, bufio.NewScanner(resp.Body), "connected", "countdown", "unlocked")
}

func TestSSEPoolUpdates(t *testing.T) {
	resolver, cache := newTestDeps(t)
	h := NewSSEHandler(resolver, cache, nil, zap.NewNop().Sugar(), time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?poolId=sgr&address=0xabc", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	readEvents(t, scanner, "connected")

	require.NoError(t, cache.Publish(ctx, store.PoolChannel("sgr"), map[string]string{"poolId": "sgr"}))
	readEvents(t, scanner, "pool_update")
}

func TestSSEBadRequests(t *testing.T) {
	resolver, cache := newTestDeps(t)
	h := NewSSEHandler(resolver, cache, nil, zap.NewNop().Sugar(), time.Second)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "missing params", query: "", status: http.StatusBadRequest},
		{name: "unknown pool", query: "poolId=nope&address=0xabc", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleSSE(rec, httptest.NewRequest(http.MethodGet, "/v1/stream/unlock?"+tt.query, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHubCountdown(t *testing.T) {
	resolver, cache := newTestDeps(t)
	hub := NewHub(resolver, cache, nil, zap.NewNop().Sugar(), 10*time.Millisecond, []string{"http://localhost:3000"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(SubscriptionRequest{
		Type:            "subscribe",
		CountdownParams: CountdownParams{PoolID: "sgr", Address: "0xabc"},
	}))

	seen := map[string]bool{}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !(seen["subscribed"] && seen["countdown"]) {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type] = true
		if msg.Type == "countdown" {
			var f Frame
			require.NoError(t, json.Unmarshal(msg.Data, &f))
			assert.Equal(t, "sgr", f.PoolID)
		}
	}
	assert.Equal(t, 1, hub.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	resolver, cache := newTestDeps(t)
	hub := NewHub(resolver, cache, nil, zap.NewNop().Sugar(), time.Second, []string{"http://localhost:3000"})

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
