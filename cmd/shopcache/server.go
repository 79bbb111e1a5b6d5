package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/guardcache"
	gzap "github.com/unkn0wn-root/guardcache/log/zap"
	"github.com/unkn0wn-root/guardcache/middleware"
	"github.com/unkn0wn-root/guardcache/session"
)

const shopKeyPrefix = "cache:shop:"

type server struct {
	shops    guardcache.Client[Shop]
	kind     guardcache.StrategyKind
	sessions *session.Store
	catalog  *catalog
	shopTTL  time.Duration
	log      *zap.Logger
}

func newServer(shops guardcache.Client[Shop], kind guardcache.StrategyKind, sessions *session.Store, c *catalog, shopTTL time.Duration, log *zap.Logger) *server {
	return &server{shops: shops, kind: kind, sessions: sessions, catalog: c, shopTTL: shopTTL, log: log}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /shop/{id}", s.getShop)
	mux.HandleFunc("PUT /shop/{id}", s.putShop)
	mux.HandleFunc("POST /user/login", s.login)
	mux.HandleFunc("GET /user/me", s.me)

	return middleware.Chain(
		middleware.Refresh(s.sessions, middleware.WithLogger(gzap.New(s.log))),
		middleware.RequireAuth(middleware.WithExcludedPaths("/shop/**", "/user/login")),
	)(mux)
}

// warmAll pre-populates logical-expiry entries; that strategy never loads a
// cold key on its own.
func (s *server) warmAll(ctx context.Context) error {
	for _, id := range s.catalog.ids() {
		if _, err := s.shops.Warm(ctx, shopKeyPrefix, strconv.FormatInt(id, 10), s.catalog.loadShop, s.shopTTL); err != nil {
			return err
		}
	}
	return nil
}

func (s *server) getShop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	shop, found, err := s.shops.Query(r.Context(), shopKeyPrefix, id, s.catalog.loadShop, guardcache.QueryOptions{TTL: s.shopTTL})
	if err != nil {
		s.fail(w, "shop query failed", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "shop not found")
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

// putShop writes the source of truth first, then drops the cache entry.
func (s *server) putShop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad shop id")
		return
	}
	var shop Shop
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&shop); err != nil {
		writeError(w, http.StatusBadRequest, "bad shop body")
		return
	}
	shop.ID = id
	if !s.catalog.updateShop(shop) {
		writeError(w, http.StatusNotFound, "shop not found")
		return
	}

	if err := s.invalidate(r.Context(), strconv.FormatInt(id, 10)); err != nil {
		s.fail(w, "cache invalidate failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// invalidate drops the entry, except under logical expiry where a missing
// key would read as not found until someone warms it again.
func (s *server) invalidate(ctx context.Context, id string) error {
	if s.kind == guardcache.StrategyLogical {
		_, err := s.shops.Warm(ctx, shopKeyPrefix, id, s.catalog.loadShop, s.shopTTL)
		return err
	}
	return s.shops.Invalidate(ctx, shopKeyPrefix, id)
}

type loginRequest struct {
	Phone string `json:"phone"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil || strings.TrimSpace(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}
	uid := s.catalog.userByPhone(req.Phone)
	p := session.Principal{ID: uid, NickName: "user_" + strconv.FormatInt(uid, 36)}
	token, err := s.sessions.Issue(r.Context(), p)
	if err != nil {
		s.fail(w, "session issue failed", err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

type meResponse struct {
	ID       int64  `json:"id"`
	NickName string `json:"nickName"`
	Icon     string `json:"icon,omitempty"`
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	p, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{ID: p.ID, NickName: p.NickName, Icon: p.Icon})
}

func (s *server) fail(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, guardcache.ErrLockContention) || errors.Is(err, guardcache.ErrStoreUnavailable) {
		status = http.StatusServiceUnavailable
	}
	s.log.Warn(msg, zap.Error(err))
	writeError(w, status, http.StatusText(status))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
