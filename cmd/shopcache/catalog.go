package main

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/unkn0wn-root/guardcache/codec"
)

type Shop struct {
	ID        int64     `json:"id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"`
	TypeID    int64     `json:"typeId" msgpack:"typeId"`
	Area      string    `json:"area" msgpack:"area"`
	Address   string    `json:"address" msgpack:"address"`
	AvgPrice  int64     `json:"avgPrice" msgpack:"avgPrice"`
	Score     int       `json:"score" msgpack:"score"` // x10
	UpdatedAt time.Time `json:"updatedAt" msgpack:"updatedAt"`
}

// shopCodec bounds decoded entries so a bad write cannot balloon memory.
func shopCodec() codec.Codec[Shop] {
	return codec.LimitCodec[Shop]{Inner: codec.Msgpack[Shop]{}, MaxDecode: 64 << 10}
}

// catalog is the persistence stand-in: the slow source of truth the cache
// guards. Lookups simulate a database round trip.
type catalog struct {
	mu      sync.RWMutex
	shops   map[int64]Shop
	users   map[string]int64 // phone -> user id
	nextUID int64
	latency time.Duration
}

func newCatalog() *catalog {
	now := time.Now().UTC()
	c := &catalog{
		shops:   make(map[int64]Shop),
		users:   make(map[string]int64),
		nextUID: 1000,
		latency: 20 * time.Millisecond,
	}
	for _, s := range []Shop{
		{ID: 1, Name: "103 Tea House", TypeID: 1, Area: "Daning", Address: "Jinhua Rd 5", AvgPrice: 80, Score: 37},
		{ID: 2, Name: "Noodle Corner", TypeID: 1, Area: "Lujiazui", Address: "Lujiazui Ring Rd 1388", AvgPrice: 45, Score: 46},
		{ID: 3, Name: "Lucky Karaoke", TypeID: 2, Area: "Wujiaochang", Address: "Songhu Rd 2", AvgPrice: 120, Score: 41},
	} {
		s.UpdatedAt = now
		c.shops[s.ID] = s
	}
	return c
}

// loadShop is the cache loader for shop ids.
func (c *catalog) loadShop(ctx context.Context, id string) (Shop, bool, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Shop{}, false, nil
	}
	select {
	case <-ctx.Done():
		return Shop{}, false, ctx.Err()
	case <-time.After(c.latency):
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.shops[n]
	return s, ok, nil
}

func (c *catalog) ids() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, 0, len(c.shops))
	for id := range c.shops {
		out = append(out, id)
	}
	return out
}

// updateShop reports false for unknown ids.
func (c *catalog) updateShop(s Shop) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.shops[s.ID]; !ok {
		return false
	}
	s.UpdatedAt = time.Now().UTC()
	c.shops[s.ID] = s
	return true
}

// userByPhone finds or registers a user.
func (c *catalog) userByPhone(phone string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.users[phone]; ok {
		return id
	}
	c.nextUID++
	c.users[phone] = c.nextUID
	return c.nextUID
}
