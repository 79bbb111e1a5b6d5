package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/unkn0wn-root/guardcache"
	asynchook "github.com/unkn0wn-root/guardcache/hooks/async"
	"github.com/unkn0wn-root/guardcache/kvstore/memory"
	"github.com/unkn0wn-root/guardcache/session"
)

func newTestServer(t *testing.T, kind guardcache.StrategyKind) http.Handler {
	t.Helper()
	store, err := memory.New(memory.Config{})
	require.NoError(t, err)

	shops, err := guardcache.New[Shop](guardcache.Options[Shop]{
		Store:    store,
		Codec:    shopCodec(),
		Strategy: kind,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shops.Close(context.Background()) })

	sessions, err := session.NewStore(session.Config{Store: store})
	require.NoError(t, err)

	c := newCatalog()
	c.latency = 0
	srv := newServer(shops, kind, sessions, c, time.Minute, zaptest.NewLogger(t))
	if kind == guardcache.StrategyLogical {
		require.NoError(t, srv.warmAll(context.Background()))
	}
	return srv.routes()
}

func call(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestShopReadUpdateCycle(t *testing.T) {
	for _, kind := range []guardcache.StrategyKind{guardcache.StrategyPassThrough, guardcache.StrategyMutex, guardcache.StrategyLogical} {
		t.Run(string(kind), func(t *testing.T) {
			h := newTestServer(t, kind)

			rec := call(t, h, http.MethodGet, "/shop/1", "", "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "103 Tea House", decode[Shop](t, rec).Name)

			assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodGet, "/shop/999", "", "").Code)

			rec = call(t, h, http.MethodPut, "/shop/1", `{"name":"103 Tea House (renovated)","avgPrice":90}`, "")
			require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

			rec = call(t, h, http.MethodGet, "/shop/1", "", "")
			require.Equal(t, http.StatusOK, rec.Code)
			got := decode[Shop](t, rec)
			assert.Equal(t, "103 Tea House (renovated)", got.Name)
			assert.Equal(t, int64(90), got.AvgPrice)
		})
	}
}

func TestPutUnknownShop(t *testing.T) {
	h := newTestServer(t, guardcache.StrategyMutex)
	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodPut, "/shop/404", `{"name":"x"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodPut, "/shop/abc", `{}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodPut, "/shop/1", `{`, "").Code)
}

func TestLoginAndMe(t *testing.T) {
	h := newTestServer(t, guardcache.StrategyMutex)

	assert.Equal(t, http.StatusUnauthorized, call(t, h, http.MethodGet, "/user/me", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodPost, "/user/login", `{}`, "").Code)

	rec := call(t, h, http.MethodPost, "/user/login", `{"phone":"13800000001"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[loginResponse](t, rec).Token
	require.NotEmpty(t, token)

	rec = call(t, h, http.MethodGet, "/user/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[meResponse](t, rec)
	assert.Equal(t, int64(1001), me.ID)

	// the same phone maps to the same user
	rec = call(t, h, http.MethodPost, "/user/login", `{"phone":"13800000001"}`, "")
	other := decode[loginResponse](t, rec).Token
	assert.NotEqual(t, token, other)
	assert.Equal(t, int64(1001), decode[meResponse](t, call(t, h, http.MethodGet, "/user/me", "", other)).ID)
}

func TestServeRejectsUnknownStrategy(t *testing.T) {
	err := serve(context.Background(), serveFlags{strategy: "lru"})
	assert.ErrorIs(t, err, guardcache.ErrUnknownStrategy)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--strategy", "mutex", "--near-window", "2s", "--session-ttl", "1h"}))
	v, _ := cmd.Flags().GetString("strategy")
	assert.Equal(t, "mutex", v)
	d, _ := cmd.Flags().GetDuration("near-window")
	assert.Equal(t, 2*time.Second, d)
	d, _ = cmd.Flags().GetDuration("session-ttl")
	assert.Equal(t, time.Hour, d)
}

func TestHookLogFlag(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--hook-log", "--hook-sample", "10"}))
	on, _ := cmd.Flags().GetBool("hook-log")
	assert.True(t, on)
	n, _ := cmd.Flags().GetUint64("hook-sample")
	assert.Equal(t, uint64(10), n)
}

func TestHooksDisabledByDefault(t *testing.T) {
	h, done := newHooks(serveFlags{}, nil)
	defer done()
	assert.Equal(t, guardcache.NopHooks{}, h)
}

func TestHooksLogCacheEvents(t *testing.T) {
	var buf bytes.Buffer
	h, done := newHooks(serveFlags{hookLog: true, debug: true, hookSample: 1}, &buf)
	require.IsType(t, &asynchook.Hooks{}, h)

	h.NegativeHit("cache:shop:99")
	h.RebuildFailed("cache:shop:1", assert.AnError)
	done()

	out := buf.String()
	assert.Contains(t, out, "guardcache.negative_hit")
	assert.Contains(t, out, "guardcache.rebuild_failed")
	assert.NotContains(t, out, "cache:shop:99")
}

func TestHooksCarryServerTraffic(t *testing.T) {
	var buf bytes.Buffer
	h, done := newHooks(serveFlags{hookLog: true, debug: true, hookSample: 1}, &buf)

	store, err := memory.New(memory.Config{})
	require.NoError(t, err)
	shops, err := guardcache.New[Shop](guardcache.Options[Shop]{
		Store:    store,
		Codec:    shopCodec(),
		Hooks:    h,
		Strategy: guardcache.StrategyPassThrough,
	})
	require.NoError(t, err)

	ctx := context.Background()
	cat := newCatalog()
	for i := 0; i < 2; i++ {
		_, found, err := shops.Query(ctx, shopKeyPrefix, "404", cat.loadShop, guardcache.QueryOptions{})
		require.NoError(t, err)
		assert.False(t, found)
	}
	require.NoError(t, shops.Close(ctx))
	done()

	assert.Contains(t, buf.String(), "guardcache.negative_hit")
}
