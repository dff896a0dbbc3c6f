package notify_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/notify"
)

type stubSender struct {
	name string
	err  error
	sent int
}

func (s *stubSender) Send(ctx context.Context, title, message string) error {
	s.sent++
	return s.err
}
func (s *stubSender) Name() string { return s.name }

func TestNotifier_AllSettledDeliversToEverySenderDespiteFailure(t *testing.T) {
	ok := &stubSender{name: "ok"}
	bad := &stubSender{name: "bad", err: errors.New("boom")}
	n := notify.NewNotifier([]notify.Sender{ok, bad}, nil, slog.Default(), 0)

	err := n.NotifyAll(context.Background(), "title", "message")
	require.Error(t, err)
	require.Equal(t, 1, ok.sent)
	require.Equal(t, 1, bad.sent)
}

func TestNotifier_FiltersByEventType(t *testing.T) {
	s := &stubSender{name: "s"}
	n := notify.NewNotifier([]notify.Sender{s}, []string{"whale_alert"}, slog.Default(), 0)

	require.NoError(t, n.Notify(context.Background(), "price_update", "t", "m"))
	require.Equal(t, 0, s.sent)

	require.NoError(t, n.Notify(context.Background(), "whale_alert", "t", "m"))
	require.Equal(t, 1, s.sent)
}

func TestNotifier_AlertHistoryBoundedAndNewestFirst(t *testing.T) {
	n := notify.NewNotifier(nil, nil, slog.Default(), 2)
	n.RecordAlert(domain.Alert{Type: "a1"})
	n.RecordAlert(domain.Alert{Type: "a2"})
	n.RecordAlert(domain.Alert{Type: "a3"})

	hist := n.AlertHistory(0)
	require.Len(t, hist, 2)
	require.Equal(t, "a3", hist[0].Type)
	require.Equal(t, "a2", hist[1].Type)
}
