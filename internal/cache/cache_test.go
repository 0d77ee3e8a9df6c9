package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/config"
)

func TestNewStoreNoop(t *testing.T) {
	cfg := config.Config{}
	cfg.Cache.Driver = "noop"

	store, err := NewStore(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Set(ctx, "purchases:1", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := store.Get(ctx, "purchases:1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
	}
	if err := store.Delete(ctx, "purchases:1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestNewStoreRejectsUnknownDriver(t *testing.T) {
	cfg := config.Config{}
	cfg.Cache.Driver = "memcached"
	if _, err := NewStore(fxtest.NewLifecycle(t), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRedisStoreEmptyKeys(t *testing.T) {
	cfg := config.Config{}
	cfg.Cache.Driver = "redis"
	cfg.Cache.Redis.Addr = "127.0.0.1:0"

	// No lifecycle start, so no connection is attempted.
	store, err := NewStore(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()
	if _, err := store.Get(ctx, ""); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get(\"\") error = %v, want ErrCacheMiss", err)
	}
	if err := store.Set(ctx, "", nil, 0); err == nil {
		t.Fatal("Set with an empty key should fail")
	}
	if err := store.Delete(ctx, ""); err != nil {
		t.Fatalf("Delete(\"\") error = %v", err)
	}
}

type mapStore map[string][]byte

func (m mapStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m[key] = value
	return nil
}

func (m mapStore) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

type cachedPurchase struct {
	ID     string
	Status string
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	store := mapStore{}
	key := PurchaseKey("p-1")
	if key != "purchases:p-1" {
		t.Fatalf("PurchaseKey() = %q", key)
	}

	if err := SetJSON(ctx, store, key, cachedPurchase{ID: "p-1", Status: "pending"}, time.Minute); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	got, err := GetJSON[cachedPurchase](ctx, store, key)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.ID != "p-1" || got.Status != "pending" {
		t.Fatalf("GetJSON() = %+v", got)
	}

	store[key] = []byte("{not json")
	if _, err := GetJSON[cachedPurchase](ctx, store, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("corrupt entry error = %v, want ErrCacheMiss", err)
	}
	if _, err := GetJSON[cachedPurchase](ctx, nil, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("nil store error = %v, want ErrCacheMiss", err)
	}
	if err := SetJSON(ctx, nil, key, cachedPurchase{}, 0); err != nil {
		t.Fatalf("SetJSON on nil store = %v", err)
	}
}

func TestRedisStorePrefixesKeys(t *testing.T) {
	cfg := config.Config{}
	cfg.Cache.Redis.Addr = "127.0.0.1:0"
	cfg.Cache.KeyPrefix = "procura:"

	store := newRedisStore(fxtest.NewLifecycle(t), cfg.Cache, zap.NewNop())
	if got := store.key(PurchaseKey("p-1")); got != "procura:purchases:p-1" {
		t.Fatalf("key = %q", got)
	}
}
