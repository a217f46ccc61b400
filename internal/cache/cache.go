// Package cache реализует кэш результатов запросов с ключом по каноническей сигнатуре запроса,
// временем устаревания для каждого типа сущности и явной инвалидацией после изменений.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entity группирует ключи кэша и определяет время их устаревания.
type Entity string

const (
	EntityBonus      Entity = "bonus"
	EntityPayroll    Entity = "payroll"
	EntityComparison Entity = "comparison"
	EntitySimulation Entity = "simulation"
)

// Key задаёт каноническую сигнатуру запроса.
type Key struct {
	Entity Entity
	sig    string
}

// NewKey строит ключ из имени операции и параметров. Порядок параметров не влияет на ключ.
func NewKey(entity Entity, op string, params map[string]string) Key {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(string(entity))
	b.WriteByte(':')
	b.WriteString(op)
	for i, name := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[name]))
	}
	return Key{Entity: entity, sig: b.String()}
}

func (k Key) String() string {
	return k.sig
}

func entityPrefix(e Entity) string {
	return string(e) + ":"
}

// Entry хранит значение и момент его загрузки.
type Entry struct {
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"storedAt"`
}

// Store определяет хранилище записей кэша.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache кэширует результаты запросов поверх Store.
type Cache struct {
	store      Store
	staleTimes map[Entity]time.Duration
	now        func() time.Time
	group      singleflight.Group

	mu          sync.Mutex
	generations map[Entity]uint64
}

// New создаёт кэш. Сущность без заданного времени устаревания не кэшируется.
func New(store Store, staleTimes map[Entity]time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	st := make(map[Entity]time.Duration, len(staleTimes))
	for e, d := range staleTimes {
		st[e] = d
	}
	return &Cache{store: store, staleTimes: st, now: now, generations: make(map[Entity]uint64)}
}

// generation возвращает счётчик инвалидаций сущности.
func (c *Cache) generation(e Entity) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[e]
}

func (c *Cache) bump(e Entity) {
	c.mu.Lock()
	c.generations[e]++
	c.mu.Unlock()
}

func (c *Cache) fresh(key Key, e Entry) bool {
	stale := c.staleTimes[key.Entity]
	return stale > 0 && c.now().Sub(e.StoredAt) < stale
}

// GetOrLoad возвращает свежее значение из кэша или загружает его через load.
// Параллельные загрузки одного ключа объединяются в одну. Ошибки хранилища
// не прерывают запрос: значение загружается заново. Значение, загруженное до
// инвалидации сущности, в хранилище не остаётся.
func (c *Cache) GetOrLoad(ctx context.Context, key Key, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if e, ok, err := c.store.Get(ctx, key.String()); err == nil && ok && c.fresh(key, e) {
		return e.Value, nil
	}

	gen := c.generation(key.Entity)
	flight := fmt.Sprintf("%s#%d", key, gen)
	v, err, _ := c.group.Do(flight, func() (interface{}, error) {
		b, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.staleTimes[key.Entity] > 0 {
			_ = c.store.Set(ctx, key.String(), Entry{Value: b, StoredAt: c.now()})
			// Invalidate увеличивает счётчик до удаления ключей.
			if c.generation(key.Entity) != gen {
				_ = c.store.Delete(ctx, key.String())
			}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Load вызывает GetOrLoad и сериализует значение в JSON.
func Load[T any](ctx context.Context, c *Cache, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	var out T
	b, err := c.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode cached %s: %w", key.Entity, err)
	}
	return out, nil
}

// Invalidate удаляет все ключи указанных сущностей.
func (c *Cache) Invalidate(ctx context.Context, entities ...Entity) error {
	for _, e := range entities {
		c.bump(e)
		if err := c.store.DeletePrefix(ctx, entityPrefix(e)); err != nil {
			return fmt.Errorf("invalidate %s: %w", e, err)
		}
	}
	return nil
}

// InvalidateKeys удаляет конкретные ключи.
func (c *Cache) InvalidateKeys(ctx context.Context, keys ...Key) error {
	raw := make([]string, 0, len(keys))
	for _, k := range keys {
		raw = append(raw, k.String())
	}
	return c.store.Delete(ctx, raw...)
}

// Snapshot хранит состояние ключа до оптимистичного изменения.
type Snapshot struct {
	key     string
	entry   Entry
	present bool
}

// Patch оптимистично изменяет закэшированное значение ключа и возвращает снимок для отката.
// Если ключа нет в кэше, fn не вызывается.
func (c *Cache) Patch(ctx context.Context, key Key, fn func([]byte) ([]byte, error)) (Snapshot, error) {
	e, ok, err := c.store.Get(ctx, key.String())
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{key: key.String(), entry: e, present: ok}
	if !ok {
		return snap, nil
	}

	patched, err := fn(e.Value)
	if err != nil {
		return snap, err
	}
	if err := c.store.Set(ctx, key.String(), Entry{Value: patched, StoredAt: e.StoredAt}); err != nil {
		return snap, err
	}
	return snap, nil
}

// Restore возвращает ключ в состояние снимка.
func (c *Cache) Restore(ctx context.Context, snaps ...Snapshot) error {
	for _, s := range snaps {
		if s.key == "" {
			continue
		}
		var err error
		if s.present {
			err = c.store.Set(ctx, s.key, s.entry)
		} else {
			err = c.store.Delete(ctx, s.key)
		}
		if err != nil {
			return fmt.Errorf("restore %s: %w", s.key, err)
		}
	}
	return nil
}
