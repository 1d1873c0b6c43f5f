package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

// InitSentry configures the global Sentry hub when dsn is set. It returns a flush func.
func InitSentry(log *logger.Logger, dsn, environment, release string) func() {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		if log != nil {
			log.Warn("sentry init failed (continuing)", "error", err)
		}
		return func() {}
	}
	if log != nil {
		log.Info("sentry initialized", "environment", environment)
	}
	return func() { sentry.Flush(2 * time.Second) }
}

// ReportPanic forwards a recovered panic value to Sentry with the given tags.
// Without an initialized client this is a no-op.
func ReportPanic(recovered any, tags map[string]string) {
	hub := sentry.CurrentHub().Clone()
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if err, ok := recovered.(error); ok {
			hub.CaptureException(err)
			return
		}
		hub.CaptureException(fmt.Errorf("panic: %v", recovered))
	})
}
