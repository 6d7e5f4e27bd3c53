// Package directory lists the hosted models a token can reach and caches
// the listing per token.
package directory

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// DefaultQuery restricts the listing to language models.
const DefaultQuery = "LLM"

var ErrListFailed = errors.New("model listing failed")

type ModelInfo struct {
	ID     string
	UserID string
	AppID  string
	// URL overrides the canonical model page URL when set.
	URL string
}

// Key is the display key of a model: owner and model ID, with underscores
// in the ID replaced by dots.
func Key(info ModelInfo) string {
	return info.UserID + ":" + strings.ReplaceAll(info.ID, "_", ".")
}

// ModelURL is the canonical URL of a hosted model.
func ModelURL(info ModelInfo) string {
	if info.URL != "" {
		return info.URL
	}
	return fmt.Sprintf("https://clarifai.com/%s/%s/models/%s", info.UserID, info.AppID, info.ID)
}

type Lister interface {
	ListModels(ctx context.Context, token string, query string) ([]ModelInfo, error)
}

type Entry struct {
	Key string `json:"key" yaml:"key"`
	URL string `json:"url" yaml:"url"`
}

// Listing is an immutable set of entries sorted by key.
type Listing struct {
	entries []Entry
	index   map[string]int
}

// NewListing builds a listing from models. A later model whose key is
// already taken replaces the earlier entry.
func NewListing(models []ModelInfo, logger *zap.Logger) *Listing {
	if logger == nil {
		logger = zap.NewNop()
	}

	byKey := make(map[string]string, len(models))
	for _, m := range models {
		k := Key(m)
		if prev, ok := byKey[k]; ok {
			logger.Debug("model key redefined, later model wins",
				zap.String("key", k),
				zap.String("previous", prev))
		}
		byKey[k] = ModelURL(m)
	}

	l := &Listing{
		entries: make([]Entry, 0, len(byKey)),
		index:   make(map[string]int, len(byKey)),
	}
	for k, u := range byKey {
		l.entries = append(l.entries, Entry{Key: k, URL: u})
	}
	sort.Slice(l.entries, func(i, j int) bool {
		return l.entries[i].Key < l.entries[j].Key
	})
	for i := range l.entries {
		l.index[l.entries[i].Key] = i
	}
	return l
}

func (l *Listing) Len() int { return len(l.entries) }

func (l *Listing) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

func (l *Listing) Keys() []string {
	keys := make([]string, len(l.entries))
	for i := range l.entries {
		keys[i] = l.entries[i].Key
	}
	return keys
}

// Lookup returns the endpoint URL for key.
func (l *Listing) Lookup(key string) (string, bool) {
	i, ok := l.index[key]
	if !ok {
		return "", false
	}
	return l.entries[i].URL, true
}

// Directory caches listings for the life of a session.
type Directory struct {
	lister Lister
	query  string
	logger *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*Listing
}

type Option func(*Directory)

func WithQuery(q string) Option {
	return func(d *Directory) {
		d.query = q
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func New(lister Lister, opts ...Option) *Directory {
	d := &Directory{
		lister: lister,
		query:  DefaultQuery,
		logger: zap.NewNop(),
		cache:  make(map[string]*Listing),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// cacheKey hashes token so the token itself is never kept as a map key.
func cacheKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// List returns the listing for token, calling the remote endpoint only on
// the first request for that token.
func (d *Directory) List(ctx context.Context, token string) (*Listing, error) {
	key := cacheKey(token)

	d.mu.RLock()
	l, ok := d.cache[key]
	d.mu.RUnlock()
	if ok {
		return l, nil
	}

	// The shared call outlives any one caller; each caller still stops
	// waiting when its own ctx is done.
	shareCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		d.mu.RLock()
		l, ok := d.cache[key]
		d.mu.RUnlock()
		if ok {
			return l, nil
		}

		models, err := d.lister.ListModels(shareCtx, token, d.query)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrListFailed, err)
		}
		l = NewListing(models, d.logger)

		d.mu.Lock()
		d.cache[key] = l
		d.mu.Unlock()

		d.logger.Debug("model listing cached",
			zap.String("query", d.query),
			zap.Int("models", l.Len()))
		return l, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			d.logger.Debug("model listing shared with a concurrent caller")
		}
		return r.Val.(*Listing), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached listing for token.
func (d *Directory) Invalidate(token string) {
	d.mu.Lock()
	delete(d.cache, cacheKey(token))
	d.mu.Unlock()
}
