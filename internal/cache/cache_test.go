package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	values map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	default:
		f.values[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	val, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type receitaRow struct {
	ID   string `json:"id"`
	Nome string `json:"nome"`
}

func TestFreshnessBoundary(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store := New(fake, 5*time.Minute)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	rows := []receitaRow{{ID: "r1", Nome: "Salada"}}
	if err := store.Put(ctx, "receitas", "nutri-a", rows); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// 299s depois: ainda fresco.
	store.now = func() time.Time { return base.Add(299 * time.Second) }
	var got []receitaRow
	found, fresh, err := store.Get(ctx, "receitas", "nutri-a", &got)
	if err != nil || !found || !fresh {
		t.Fatalf("esperava fresco aos 299s: found=%v fresh=%v err=%v", found, fresh, err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("snapshot inesperado: %+v", got)
	}

	// 301s depois: velho, mas ainda legível como fallback.
	store.now = func() time.Time { return base.Add(301 * time.Second) }
	got = nil
	found, fresh, err = store.Get(ctx, "receitas", "nutri-a", &got)
	if err != nil || !found {
		t.Fatalf("esperava entrada velha legível: found=%v err=%v", found, err)
	}
	if fresh {
		t.Fatal("entrada com 301s não pode ser considerada fresca")
	}
	if len(got) != 1 {
		t.Fatalf("fallback degradado deveria manter os dados: %+v", got)
	}
}

func TestKeyIsolatesOwnersAndEntities(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store := New(fake, 5*time.Minute)

	if err := store.Put(ctx, "receitas", "nutri-a", []receitaRow{{ID: "a"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "receitas", "nutri-b", []receitaRow{{ID: "b"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got []receitaRow
	if found, _, _ := store.Get(ctx, "receitas", "nutri-a", &got); !found {
		t.Fatal("snapshot de nutri-a sumiu")
	}
	if got[0].ID != "a" {
		t.Fatalf("snapshot de nutri-a contaminado: %+v", got)
	}

	if found, _, _ := store.Get(ctx, "clientes", "nutri-a", &got); found {
		t.Fatal("entidades distintas não podem compartilhar chave")
	}
}

func TestInvalidateMissingKeyIsNoop(t *testing.T) {
	store := New(newFakeRedis(), time.Minute)
	if err := store.Invalidate(context.Background(), "receitas", "ninguem"); err != nil {
		t.Fatalf("Invalidate em chave ausente: %v", err)
	}
}
