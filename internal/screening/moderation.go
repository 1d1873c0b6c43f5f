package screening

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/httpx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/platform/openai"
)

const systemErrorPrefix = "system_error"

type ModerationVerdict struct {
	Clean      bool
	Violations []string
	Severity   types.Severity
}

// Moderator never returns an error: failures come back as a not-clean, high-severity verdict.
type Moderator interface {
	Moderate(ctx context.Context, text string) ModerationVerdict
}

type openAIModerator struct {
	log     *logger.Logger
	ai      openai.Client
	timeout time.Duration
}

func NewOpenAIModerator(log *logger.Logger, ai openai.Client, timeout time.Duration) (Moderator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = DefaultConfig().CallTimeout
	}
	return &openAIModerator{
		log:     log.With("service", "ContentModerationAdapter"),
		ai:      ai,
		timeout: timeout,
	}, nil
}

func (m *openAIModerator) Moderate(ctx context.Context, text string) ModerationVerdict {
	if strings.TrimSpace(text) == "" {
		return ModerationVerdict{Clean: true, Severity: types.SeverityLow}
	}
	if m.ai == nil {
		return failClosedModeration(fmt.Errorf("moderation client not configured"))
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.ai.Moderate(callCtx, text)
	if err != nil {
		m.log.Warn("moderation call failed; failing closed", "error", err, "class", httpx.Classify(err))
		return failClosedModeration(err)
	}
	return verdictFromModeration(res)
}

func verdictFromModeration(res openai.Moderation) ModerationVerdict {
	if !res.Flagged {
		return ModerationVerdict{Clean: true, Severity: types.SeverityLow}
	}
	violations := append([]string(nil), res.Categories...)
	sort.Strings(violations)
	if len(violations) == 0 {
		violations = []string{"flagged"}
	}
	return ModerationVerdict{
		Clean:      false,
		Violations: violations,
		Severity:   severityForScore(res.MaxScore),
	}
}

func severityForScore(s float64) types.Severity {
	switch {
	case s >= 0.9:
		return types.SeverityCritical
	case s >= 0.7:
		return types.SeverityHigh
	case s >= 0.4:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func failClosedModeration(err error) ModerationVerdict {
	return ModerationVerdict{
		Clean:      false,
		Violations: []string{fmt.Sprintf("%s: moderation unavailable: %v", systemErrorPrefix, err)},
		Severity:   types.SeverityHigh,
	}
}
