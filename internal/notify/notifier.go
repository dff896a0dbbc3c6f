// Package notify provides a multi-channel notification system. Notifications
// are dispatched to all registered senders (Telegram, Discord, etc.) and can be
// filtered by event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arbplane/arbplane/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a set
// of allowed event types; Notify only forwards messages whose event type is in
// the allowed set, while NotifyAll bypasses the filter. It also retains a
// bounded history of dispatched alerts for the coordinator's /api/alerts
// surface.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger

	mu         sync.Mutex
	history    []domain.Alert
	historyCap int
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed. historyCap bounds the
// alert-history ring buffer; 0 defaults to 1000.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger, historyCap int) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	if historyCap <= 0 {
		historyCap = 1000
	}
	return &Notifier{
		senders:    senders,
		events:     allowed,
		logger:     logger.With(slog.String("component", "notifier")),
		historyCap: historyCap,
	}
}

// RecordAlert appends an alert to the bounded history, evicting the oldest
// entry when historyCap is exceeded.
func (n *Notifier) RecordAlert(a domain.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, a)
	if overflow := len(n.history) - n.historyCap; overflow > 0 {
		n.history = append([]domain.Alert(nil), n.history[overflow:]...)
	}
}

// AlertHistory returns up to limit most recent alerts, newest first. limit<=0
// returns the full history.
func (n *Notifier) AlertHistory(limit int) []domain.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := len(n.history)
	if limit <= 0 || limit > total {
		limit = total
	}
	out := make([]domain.Alert, 0, limit)
	for i := total - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, n.history[i])
	}
	return out
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list. If no events were configured (empty list), all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	// If specific events were configured, filter.
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// NotifyAlert adapts a domain.Alert into a title/message pair and dispatches
// it through Notify, filtered by the alert's Type. Satisfies
// coordinator.AlertSink alongside RecordAlert.
func (n *Notifier) NotifyAlert(ctx context.Context, a domain.Alert) error {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Type)
	message := a.Message
	if a.Service != "" {
		message = fmt.Sprintf("%s (service: %s)", message, a.Service)
	}
	return n.Notify(ctx, a.Type, title, message)
}

// dispatch fans out to every sender concurrently and waits for all of them
// to settle, the same all-settled semantics as Promise.allSettled: one
// sender's failure never blocks or cancels delivery to the others. Errors
// are collected and returned as a single combined error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	errCh := make(chan string, len(n.senders))
	var g errgroup.Group
	for _, s := range n.senders {
		s := s
		g.Go(func() error {
			if err := s.Send(ctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "sender failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				errCh <- fmt.Sprintf("%s: %v", s.Name(), err)
				return nil
			}
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
			return nil
		})
	}
	_ = g.Wait()
	close(errCh)

	var errs []string
	for e := range errCh {
		errs = append(errs, e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
