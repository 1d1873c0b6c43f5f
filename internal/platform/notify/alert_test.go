package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type fakeAlerter struct {
	calls int
	err   error
}

func (f *fakeAlerter) Alert(_ context.Context, _ Alert) error {
	f.calls++
	return f.err
}

func TestFanoutDeliversToAll(t *testing.T) {
	a := &fakeAlerter{}
	b := &fakeAlerter{err: errors.New("webhook down")}
	c := &fakeAlerter{}

	err := Fanout{a, nil, b, c}.Alert(context.Background(), Alert{Scraper: "olx", Attempts: 4})
	if err == nil || !strings.Contains(err.Error(), "webhook down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Fatalf("expected each alerter once, got %d %d %d", a.calls, b.calls, c.calls)
	}
}

func TestAlertMessage(t *testing.T) {
	a := Alert{Scraper: "cardekho", Attempts: 4, LastError: "timeout"}
	if !strings.Contains(a.Message(), "4 times") || !strings.Contains(a.Title(), "cardekho") {
		t.Fatalf("unexpected alert text: %q / %q", a.Title(), a.Message())
	}
}

func TestNewShoutrrrAlerterRequiresURL(t *testing.T) {
	if _, err := NewShoutrrrAlerter(logger.Nop(), []string{" "}, 0); err == nil {
		t.Fatalf("expected error for empty url list")
	}
}

func TestSanitizeDropsURLs(t *testing.T) {
	got := sanitize(errors.New("failed to send to telegram://token@telegram?chats=1 now"))
	if strings.Contains(got, "token") {
		t.Fatalf("url leaked: %q", got)
	}
}
