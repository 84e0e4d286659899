package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// multipartThreshold switches price history uploads to the multipart
// uploader.
const multipartThreshold = 8 << 20

// Archiver implements domain.PeriodArchiver. A period is stored as
//
//	archive/2024-01-02/1704200400/positions.jsonl
//	archive/2024-01-02/1704200400/prices.txt
//
// and is skipped when its positions object already exists.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

func NewArchiver(w domain.BlobWriter, r domain.BlobReader) *Archiver {
	return &Archiver{writer: w, reader: r}
}

func (a *Archiver) ArchivePeriod(ctx context.Context, period int64, positions []domain.Position, priceLines []string) error {
	if len(positions) == 0 && len(priceLines) == 0 {
		return nil
	}
	prefix := periodPrefix(period)

	if a.reader != nil {
		done, err := a.reader.Exists(ctx, prefix+"positions.jsonl")
		if err != nil {
			return fmt.Errorf("s3blob: archive %d: %w", period, err)
		}
		if done {
			return nil
		}
	}

	if len(priceLines) > 0 {
		body := []byte(strings.Join(priceLines, "\n") + "\n")
		var err error
		if len(body) >= multipartThreshold {
			err = a.writer.PutMultipart(ctx, prefix+"prices.txt", bytes.NewReader(body), minPartSize)
		} else {
			err = a.writer.Put(ctx, prefix+"prices.txt", bytes.NewReader(body), "text/plain")
		}
		if err != nil {
			return fmt.Errorf("s3blob: archive %d prices: %w", period, err)
		}
	}

	// Positions go last: their presence marks the period as archived.
	buf, err := marshalJSONL(positionRecords(positions))
	if err != nil {
		return fmt.Errorf("s3blob: archive %d: %w", period, err)
	}
	if err := a.writer.Put(ctx, prefix+"positions.jsonl", bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive %d positions: %w", period, err)
	}
	return nil
}

func periodPrefix(period int64) string {
	return fmt.Sprintf("archive/%s/%d/", time.Unix(period, 0).UTC().Format("2006-01-02"), period)
}

// positionRecord is the archived JSON shape of a position.
type positionRecord struct {
	ID                 string     `json:"id"`
	Period             int64      `json:"period"`
	Market             string     `json:"market"`
	TokenID            string     `json:"token_id"`
	ConditionID        string     `json:"condition_id"`
	Kind               string     `json:"kind"`
	State              string     `json:"state"`
	Shares             float64    `json:"shares"`
	EntryPrice         float64    `json:"entry_price"`
	Cost               float64    `json:"cost"`
	SellPrice          float64    `json:"sell_price,omitempty"`
	RealizedPnL        float64    `json:"realized_pnl"`
	SellAttempts       int        `json:"sell_attempts,omitempty"`
	RedemptionAttempts int        `json:"redemption_attempts,omitempty"`
	Note               string     `json:"note,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

func positionRecords(ps []domain.Position) []positionRecord {
	out := make([]positionRecord, 0, len(ps))
	for _, p := range ps {
		r := positionRecord{
			ID:                 p.ID,
			Period:             p.PeriodTimestamp,
			Market:             p.TokenType.DisplayName(),
			TokenID:            p.TokenID,
			ConditionID:        p.ConditionID,
			Kind:               string(p.Kind),
			State:              string(p.State),
			Shares:             p.Shares,
			EntryPrice:         p.EntryPrice,
			Cost:               p.Cost,
			SellPrice:          p.SellPrice,
			RealizedPnL:        p.RealizedPnL,
			SellAttempts:       p.SellAttempts,
			RedemptionAttempts: p.RedemptionAttempts,
			Note:               p.Note,
			CreatedAt:          p.CreatedAt,
		}
		if !p.ClosedAt.IsZero() {
			closed := p.ClosedAt
			r.ClosedAt = &closed
		}
		out = append(out, r)
	}
	return out
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.PeriodArchiver = (*Archiver)(nil)
