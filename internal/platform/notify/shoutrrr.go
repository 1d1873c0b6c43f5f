package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

// shoutrrrAlerter sends alerts through one shoutrrr router covering all configured URLs.
type shoutrrrAlerter struct {
	log    *logger.Logger
	sender *router.ServiceRouter
}

func NewShoutrrrAlerter(baseLog *logger.Logger, urls []string, timeout time.Duration) (Alerter, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	clean := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, u)
		}
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("at least one alert URL is required")
	}
	sender, err := shoutrrr.CreateSender(clean...)
	if err != nil {
		return nil, fmt.Errorf("shoutrrr sender: %s", sanitize(err))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	services := make([]string, 0, len(clean))
	for _, u := range clean {
		if parsed, err := url.Parse(u); err == nil {
			services = append(services, parsed.Scheme)
		}
	}
	slog := baseLog.With("service", "ShoutrrrAlerter")
	slog.Info("alert channels configured", "services", services)
	return &shoutrrrAlerter{log: slog, sender: sender}, nil
}

func (s *shoutrrrAlerter) Alert(_ context.Context, a Alert) error {
	params := stypes.Params{}
	params.SetTitle(a.Title())
	for _, err := range s.sender.Send(a.Message(), &params) {
		if err != nil {
			return fmt.Errorf("shoutrrr send: %s", sanitize(err))
		}
	}
	return nil
}

// sanitize drops anything that looks like a service URL, since those embed tokens.
func sanitize(err error) string {
	fields := strings.Fields(err.Error())
	for i, f := range fields {
		if strings.Contains(f, "://") {
			fields[i] = "[url]"
		}
	}
	return strings.Join(fields, " ")
}
