package service

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PriceHistory appends each monitor price line to
// {dir}/market_{period}_prices.txt. Only the current period's file is kept
// open.
type PriceHistory struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	period int64
	file   *os.File
}

func NewPriceHistory(dir string, logger *slog.Logger) (*PriceHistory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("service: price history dir: %w", err)
	}
	return &PriceHistory{
		dir:    dir,
		logger: logger.With(slog.String("component", "price_history")),
		now:    time.Now,
	}, nil
}

// Path returns the history file of a period.
func (h *PriceHistory) Path(period int64) string {
	return filepath.Join(h.dir, fmt.Sprintf("market_%d_prices.txt", period))
}

// Record implements monitor.HistoryRecorder.
func (h *PriceHistory) Record(period int64, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil || h.period != period {
		if h.file != nil {
			_ = h.file.Close()
			h.file = nil
		}
		f, err := os.OpenFile(h.Path(period), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			h.logger.Warn("open price history failed", slog.Int64("period", period), slog.String("error", err.Error()))
			return
		}
		h.file, h.period = f, period
	}
	stamp := h.now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(h.file, "[%s] %s\n", stamp, line); err != nil {
		h.logger.Warn("price history write failed", slog.String("error", err.Error()))
	}
}

// Lines returns a period's recorded lines. A period with no file yields nil.
func (h *PriceHistory) Lines(period int64) ([]string, error) {
	f, err := os.Open(h.Path(period))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service: read price history %d: %w", period, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("service: read price history %d: %w", period, err)
	}
	return lines, nil
}

func (h *PriceHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}
