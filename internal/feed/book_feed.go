package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

// QuoteStream is a push source of top-of-book updates.
// *polymarket.WSClient satisfies it.
type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, assetIDs []string) error
	OnQuote(h polymarket.QuoteHandler)
	Close() error
}

// BookFeed serves quotes from the market channel when it has a fresh one
// and falls back to the REST book otherwise. It satisfies
// domain.QuoteSource, so the monitor does not care which path answered.
type BookFeed struct {
	stream   QuoteStream
	fallback domain.QuoteSource
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	quotes map[string]domain.Quote
	hits   int64
	misses int64
}

// NewBookFeed creates a feed. stream may be nil, in which case every Quote
// goes to the fallback.
func NewBookFeed(stream QuoteStream, fallback domain.QuoteSource, maxAge time.Duration, logger *slog.Logger) *BookFeed {
	f := &BookFeed{
		stream:   stream,
		fallback: fallback,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "book_feed")),
		now:      time.Now,
		quotes:   make(map[string]domain.Quote),
	}
	if stream != nil {
		stream.OnQuote(f.store)
	}
	return f
}

func (f *BookFeed) store(q domain.Quote) {
	f.mu.Lock()
	f.quotes[q.TokenID] = q
	f.mu.Unlock()
}

// Quote implements domain.QuoteSource.
func (f *BookFeed) Quote(ctx context.Context, tokenID string) (domain.Quote, error) {
	f.mu.RLock()
	q, ok := f.quotes[tokenID]
	f.mu.RUnlock()
	if ok && f.now().Sub(q.At) <= f.maxAge {
		f.mu.Lock()
		f.hits++
		f.mu.Unlock()
		return q, nil
	}
	f.mu.Lock()
	f.misses++
	f.mu.Unlock()
	return f.fallback.Quote(ctx, tokenID)
}

// Track replaces the subscribed token set and drops cached quotes for
// tokens no longer tracked.
func (f *BookFeed) Track(ctx context.Context, tokenIDs []string) error {
	keep := make(map[string]struct{}, len(tokenIDs))
	for _, id := range tokenIDs {
		keep[id] = struct{}{}
	}
	f.mu.Lock()
	for id := range f.quotes {
		if _, ok := keep[id]; !ok {
			delete(f.quotes, id)
		}
	}
	f.mu.Unlock()

	if f.stream == nil {
		return nil
	}
	return f.stream.Subscribe(ctx, tokenIDs)
}

// Stats returns how many quotes were served from the stream and from REST.
func (f *BookFeed) Stats() (streamed, fetched int64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hits, f.misses
}

// Run connects the stream and keeps it open until ctx is cancelled. The
// initial connection is retried; once connected the stream reconnects on
// its own.
func (f *BookFeed) Run(ctx context.Context) error {
	if f.stream == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	defer f.stream.Close()

	for {
		connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := f.stream.Connect(connCtx)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("market channel connect failed, retrying", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	f.logger.Info("market channel connected")

	<-ctx.Done()
	return ctx.Err()
}
