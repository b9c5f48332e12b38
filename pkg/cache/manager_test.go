package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/poi"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis starts an in-memory Redis for the test.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func testKey() PageKey {
	return PageKey{Keyword: "物业公司", City: "310000", Polygon: "1,2|3,2|3,4|1,4|1,2", Page: 2, PageSize: 25}
}

func TestNewManager(t *testing.T) {
	client, _ := setupTestRedis(t)

	manager := NewManager(client, 0)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", manager.TTL(), DefaultTTL)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Hour)
}

func TestManager_SetGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Hour)
	ctx := context.Background()

	total := 42
	entry := &PageEntry{
		Records:       []poi.Record{{ID: "B1", Name: "a"}, {Name: "b", Address: "x"}},
		DeclaredTotal: &total,
	}
	if err := manager.Set(ctx, testKey(), entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := manager.Get(ctx, testKey())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Records) != 2 || got.Records[0].ID != "B1" || got.Records[1].Address != "x" {
		t.Errorf("Get() records = %+v", got.Records)
	}
	if got.DeclaredTotal == nil || *got.DeclaredTotal != 42 {
		t.Errorf("Get() declared total = %v, want 42", got.DeclaredTotal)
	}

	if ttl := mr.TTL(testKey().String()); ttl <= 0 || ttl > time.Hour {
		t.Errorf("redis TTL = %v, want (0, 1h]", ttl)
	}
}

func TestManager_Miss(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client, time.Hour)

	other := testKey()
	other.Page = 3
	_, err := manager.Get(context.Background(), other)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Expiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	if err := manager.Set(ctx, testKey(), &PageEntry{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := manager.Get(ctx, testKey()); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_SetExpiredEntrySkipped(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Hour)

	entry := &PageEntry{Expires: time.Now().Add(-time.Second)}
	if err := manager.Set(context.Background(), testKey(), entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if mr.Exists(testKey().String()) {
		t.Error("expired entry should not be stored")
	}
}

func TestManager_InvalidEntry(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Hour)

	if err := mr.Set(testKey().String(), "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Get(context.Background(), testKey()); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
	}
}
