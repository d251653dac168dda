package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry é o envelope persistido por snapshot: os dados serializados e o
// instante da escrita em epoch-ms.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store guarda snapshots por entidade e dona(o), com janela de frescor.
// Entradas velhas continuam legíveis como fallback degradado; a TTL do
// Redis só limpa o que já não serve nem como fallback.
type Store struct {
	redis     redisCommander
	freshness time.Duration
	retention time.Duration
	now       func() time.Time
}

// New cria Store com janela de frescor informada (5 minutos no padrão
// da plataforma).
func New(redisClient redisCommander, freshness time.Duration) *Store {
	if freshness <= 0 {
		freshness = 5 * time.Minute
	}
	return &Store{
		redis:     redisClient,
		freshness: freshness,
		retention: 24 * time.Hour,
		now:       time.Now,
	}
}

// Key compõe a chave "<entidade>_<dona>".
func Key(entity, ownerID string) string {
	return entity + "_" + ownerID
}

// Get lê snapshot para dest. Devolve found=false quando não há entrada
// e fresh=false quando a entrada existe mas passou da janela de frescor
// (os dados ainda são decodificados para uso degradado).
func (s *Store) Get(ctx context.Context, entity, ownerID string, dest any) (found bool, fresh bool, err error) {
	raw, err := s.redis.Get(ctx, Key(entity, ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return false, false, err
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		return false, false, err
	}

	age := s.now().UnixMilli() - entry.Timestamp
	return true, age < s.freshness.Milliseconds(), nil
}

// Put sobrescreve o snapshot inteiro da chave (last-writer-wins entre
// escritores concorrentes).
func (s *Store) Put(ctx context.Context, entity, ownerID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	entry := Entry{Data: payload, Timestamp: s.now().UnixMilli()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, Key(entity, ownerID), raw, s.retention).Err()
}

// Invalidate remove o snapshot da dona(o).
func (s *Store) Invalidate(ctx context.Context, entity, ownerID string) error {
	err := s.redis.Del(ctx, Key(entity, ownerID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
