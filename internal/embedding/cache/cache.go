package cache

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"refcite/internal/embedding"
)

// Cache defines embedding cache operations
type Cache interface {
	Get(ctx context.Context, key string) ([]float64, bool)
	Set(ctx context.Context, key string, v []float64, ttl time.Duration)
}

// LocalLRU keeps the most recently used vectors of one process. Entries past
// their deadline are dropped on the next Get. Vectors are copied in and out.
type LocalLRU struct {
	mu      sync.Mutex
	size    int
	order   *list.List // front is the most recently used
	entries map[string]*list.Element
	now     func() time.Time
}

type lruEntry struct {
	key      string
	vec      []float64
	deadline time.Time
}

func NewLocalLRU(size int) *LocalLRU {
	if size <= 0 {
		size = 1024
	}
	return &LocalLRU{
		size:    size,
		order:   list.New(),
		entries: make(map[string]*list.Element, size),
		now:     time.Now,
	}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*lruEntry)
	if !l.now().Before(ent.deadline) {
		l.remove(el)
		return nil, false
	}
	l.order.MoveToFront(el)
	return slices.Clone(ent.vec), true
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float64, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	deadline := l.now().Add(ttl)
	if el, ok := l.entries[key]; ok {
		ent := el.Value.(*lruEntry)
		ent.vec, ent.deadline = slices.Clone(v), deadline
		l.order.MoveToFront(el)
		return
	}
	l.entries[key] = l.order.PushFront(&lruEntry{key: key, vec: slices.Clone(v), deadline: deadline})
	for l.order.Len() > l.size {
		l.remove(l.order.Back())
	}
}

func (l *LocalLRU) remove(el *list.Element) {
	delete(l.entries, el.Value.(*lruEntry).key)
	l.order.Remove(el)
}

// Len returns the number of cached entries, expired ones included.
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// RedisCache stores vectors as little-endian float64 blobs.
type RedisCache struct {
	cli *redis.Client
}

func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return &RedisCache{cli: rc}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float64, bool) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil || len(b)%8 != 0 {
		return nil, false
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float64, ttl time.Duration) {
	b := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(f))
	}
	_ = r.cli.Set(ctx, key, b, ttl).Err()
}

func (r *RedisCache) Close() error { return r.cli.Close() }

// MakeKey derives the cache key for a text embedded by the named model.
func MakeKey(model, text string) string {
	h := md5.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}

// Embedder serves embeddings from a cache before delegating to the wrapped embedder.
// Only embedders whose output does not depend on Prepare should be wrapped.
type Embedder struct {
	next  embedding.Embedder
	cache Cache
	ttl   time.Duration
}

func NewEmbedder(next embedding.Embedder, cache Cache, ttl time.Duration) *Embedder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Embedder{next: next, cache: cache, ttl: ttl}
}

func (e *Embedder) Name() string                  { return e.next.Name() }
func (e *Embedder) Prepare(corpus []string) error { return e.next.Prepare(corpus) }
func (e *Embedder) Dimension() int                { return e.next.Dimension() }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := MakeKey(e.next.Name(), text)
	if v, ok := e.cache.Get(ctx, key); ok {
		return v, nil
	}
	v, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, v, e.ttl)
	return v, nil
}

// EmbedBatch looks every text up in the cache and embeds only the misses.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))
	var (
		missTexts   []string
		missIndices []int
	)
	for i, text := range texts {
		if v, ok := e.cache.Get(ctx, MakeKey(e.next.Name(), text)); ok {
			results[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIndices = append(missIndices, i)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	var vecs [][]float64
	if be, ok := e.next.(embedding.BatchEmbedder); ok {
		var err error
		if vecs, err = be.EmbedBatch(ctx, missTexts); err != nil {
			return nil, err
		}
	} else {
		vecs = make([][]float64, len(missTexts))
		for i, text := range missTexts {
			v, err := e.next.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			vecs[i] = v
		}
	}
	for i, v := range vecs {
		results[missIndices[i]] = v
		e.cache.Set(ctx, MakeKey(e.next.Name(), missTexts[i]), v, e.ttl)
	}
	return results, nil
}
