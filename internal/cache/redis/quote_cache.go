package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// QuoteCache mirrors the latest top of book per token as a hash at
// "updown:quote:{tokenID}" with fields bid, ask and ts (unix nanoseconds).
// Entries expire after ttl so a stopped bot leaves no stale prices behind.
type QuoteCache struct {
	c   *Client
	ttl time.Duration
}

func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &QuoteCache{c: c, ttl: ttl}
}

func quoteKey(tokenID string) string { return keyPrefix + "quote:" + tokenID }

// SetQuote implements domain.QuoteMirror.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.TokenID)
	pipe := qc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"bid": strconv.FormatFloat(q.Bid, 'f', -1, 64),
		"ask": strconv.FormatFloat(q.Ask, 'f', -1, 64),
		"ts":  strconv.FormatInt(q.At.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, qc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.TokenID, err)
	}
	return nil
}

// GetQuote returns domain.ErrNotFound when no quote is mirrored.
func (qc *QuoteCache) GetQuote(ctx context.Context, tokenID string) (domain.Quote, error) {
	vals, err := qc.c.rdb.HGetAll(ctx, quoteKey(tokenID)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, fmt.Errorf("redis: quote %s: %w", tokenID, domain.ErrNotFound)
	}
	return parseQuote(tokenID, vals)
}

func parseQuote(tokenID string, vals map[string]string) (domain.Quote, error) {
	bid, err := strconv.ParseFloat(vals["bid"], 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: quote %s: bid: %w", tokenID, domain.ErrMalformedQuote)
	}
	ask, err := strconv.ParseFloat(vals["ask"], 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: quote %s: ask: %w", tokenID, domain.ErrMalformedQuote)
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: quote %s: ts: %w", tokenID, domain.ErrMalformedQuote)
	}
	return domain.Quote{TokenID: tokenID, Bid: bid, Ask: ask, At: time.Unix(0, ts)}, nil
}

var _ domain.QuoteMirror = (*QuoteCache)(nil)
