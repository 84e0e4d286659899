package s3blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type memBlobs struct {
	objects map[string]string
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string]string{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = string(b)
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "multipart")
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestArchivePeriod(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs)
	period := int64(1_704_200_400) // 2024-01-02T13:00:00Z
	positions := []domain.Position{{
		ID: "p1", PeriodTimestamp: period, TokenType: domain.BTCUp, TokenID: "t",
		Kind: domain.OrderKindMarket, State: domain.StateSold, Shares: 10, Cost: 6, RealizedPnL: 3.9,
		CreatedAt: time.Unix(period+60, 0).UTC(), ClosedAt: time.Unix(period+400, 0).UTC(),
	}}
	lines := []string{"[2024-01-02T13:00:01Z] BTC: U$0.50/$0.52 D$0.47/$0.49 | 14m 59s"}

	if err := a.ArchivePeriod(context.Background(), period, positions, lines); err != nil {
		t.Fatal(err)
	}

	posPath := "archive/2024-01-02/1704200400/positions.jsonl"
	got, ok := blobs.objects[posPath]
	if !ok {
		t.Fatalf("missing %s; have %v", posPath, blobs.objects)
	}
	if !strings.Contains(got, `"market":"BTC Up"`) || !strings.Contains(got, `"state":"sold"`) || !strings.HasSuffix(got, "\n") {
		t.Fatalf("got positions %q", got)
	}
	if prices := blobs.objects["archive/2024-01-02/1704200400/prices.txt"]; prices != lines[0]+"\n" {
		t.Fatalf("got prices %q", prices)
	}

	// Already archived periods are left untouched.
	blobs.objects[posPath] = "sentinel"
	if err := a.ArchivePeriod(context.Background(), period, positions, lines); err != nil {
		t.Fatal(err)
	}
	if blobs.objects[posPath] != "sentinel" {
		t.Fatal("archived period was rewritten")
	}
}

func TestWithScheme(t *testing.T) {
	cases := map[string]string{
		"minio:9000":         "http://minio:9000",
		"https://r2.example": "https://r2.example",
	}
	for in, want := range cases {
		if got := withScheme(in, false); got != want {
			t.Fatalf("withScheme(%q) got=%q want=%q", in, got, want)
		}
	}
	if got := withScheme("e2.example", true); got != "https://e2.example" {
		t.Fatalf("got=%q", got)
	}
}
