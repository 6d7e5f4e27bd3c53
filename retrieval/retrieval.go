package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTopK          = 5
	DefaultConcurrency   = 10
	DefaultSearchTimeout = 30 * time.Second
	DefaultFetchTimeout  = 30 * time.Second
)

// InputTypeText restricts a search to text inputs.
const InputTypeText = "text"

// Hit is one search result; URL locates the raw document text.
type Hit struct {
	ID    string
	URL   string
	Score float64
}

type SearchOptions struct {
	TopK       int
	InputTypes []string
}

type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Result holds the distinct document texts of one retrieval, in the order
// they were first seen, and the hits whose fetch failed.
type Result struct {
	Documents []string
	Failures  []*FetchError
}

type Retriever struct {
	searcher Searcher
	fetcher  Fetcher

	topK          int
	concurrency   int
	searchTimeout time.Duration
	fetchTimeout  time.Duration
	failFast      bool

	logger *zap.Logger
}

type Option func(*Retriever)

func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithConcurrency bounds the number of documents fetched at once.
func WithConcurrency(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithSearchTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		r.searchTimeout = d
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		r.fetchTimeout = d
	}
}

// WithFailFast makes the first failed fetch fail the whole retrieval.
// By default failed hits are left out and reported in Result.Failures.
func WithFailFast() Option {
	return func(r *Retriever) {
		r.failFast = true
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRetriever(searcher Searcher, fetcher Fetcher, opts ...Option) *Retriever {
	r := &Retriever{
		searcher:      searcher,
		fetcher:       fetcher,
		topK:          DefaultTopK,
		concurrency:   DefaultConcurrency,
		searchTimeout: DefaultSearchTimeout,
		fetchTimeout:  DefaultFetchTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve searches for query and fetches every hit concurrently. It returns
// once all fetches have finished.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Result, error) {
	start := time.Now()

	hits, err := r.search(ctx, query)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(hits))
	failed := make([]*FetchError, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, hit := range hits {
		g.Go(func() error {
			text, err := r.fetch(gctx, hit.URL)
			if err != nil {
				failed[i] = &FetchError{URL: hit.URL, Err: err}
				if r.failFast {
					return failed[i]
				}
				return nil
			}
			texts[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Warn("retrieval aborted", zap.Error(err))
		return nil, err
	}

	res := &Result{}
	seen := make(map[string]struct{}, len(texts))
	for i := range hits {
		if failed[i] != nil {
			r.logger.Warn("document fetch failed",
				zap.String("url", failed[i].URL),
				zap.Error(failed[i].Err))
			res.Failures = append(res.Failures, failed[i])
			continue
		}
		if _, ok := seen[texts[i]]; ok {
			continue
		}
		seen[texts[i]] = struct{}{}
		res.Documents = append(res.Documents, texts[i])
	}

	r.logger.Debug("retrieval completed",
		zap.Int("hits", len(hits)),
		zap.Int("documents", len(res.Documents)),
		zap.Int("failed", len(res.Failures)),
		zap.Duration("duration", time.Since(start)))

	return res, nil
}

func (r *Retriever) search(ctx context.Context, query string) ([]Hit, error) {
	if r.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.searchTimeout)
		defer cancel()
	}

	hits, err := r.searcher.Search(ctx, query, SearchOptions{
		TopK:       r.topK,
		InputTypes: []string{InputTypeText},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	if len(hits) > r.topK {
		hits = hits[:r.topK]
	}

	usable := hits[:0:0]
	for _, h := range hits {
		if h.URL == "" {
			r.logger.Debug("hit without url skipped", zap.String("id", h.ID))
			continue
		}
		usable = append(usable, h)
	}
	return usable, nil
}

func (r *Retriever) fetch(ctx context.Context, url string) (string, error) {
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}
	return r.fetcher.Fetch(ctx, url)
}

var (
	ErrSearchFailed = errors.New("search failed")
	ErrFetchFailed  = errors.New("document fetch failed")
)

type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}
