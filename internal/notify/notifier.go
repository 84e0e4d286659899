// Package notify forwards selected trading events to chat channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an event out to every sender when its kind is enabled.
type Notifier struct {
	senders []Sender
	kinds   map[domain.EventKind]bool
	logger  *slog.Logger
}

// NewNotifier forwards only the listed event kinds; an empty list forwards
// everything.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventKind]bool, len(kinds))
	for _, k := range kinds {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
			allowed[domain.EventKind(k)] = true
		}
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether events of kind are forwarded.
func (n *Notifier) Enabled(kind domain.EventKind) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.kinds) == 0 || n.kinds[kind]
}

// NotifyEvent sends ev to every sender. A failing sender does not stop the
// others; their errors are joined.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.TradingEvent) error {
	if !n.Enabled(ev.Kind) {
		return nil
	}
	title := string(ev.Kind)
	if ev.Market != "" {
		title += " · " + ev.Market
	}
	return n.dispatch(ctx, title, ev.Line())
}

// NotifyAll sends an unfiltered message, used for startup and shutdown.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "notification failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// postJSON posts body and treats any 2xx as success.
func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func defaultHTTPClient() *http.Client { return &http.Client{Timeout: 10 * time.Second} }
