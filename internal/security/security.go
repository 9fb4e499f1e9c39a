// Package security runs the pre-dispatch prompt check. Analysis delegates
// to a moderation-capable adapter; a blocked verdict stops the request
// before any provider is contacted or billed. Scanner failures fail open.
package security

import (
	"context"
	"encoding/json"
	"log/slog"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// Risk levels reported by Analyze, derived from the top category score.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

const (
	mediumFloor = 0.4
	highFloor   = 0.7
)

// Moderator is the slice of the adapter contract the scanner consumes.
type Moderator interface {
	ModerateContent(ctx context.Context, req *gateway.ModerationRequest) (*gateway.ModerationResponse, error)
}

// Analysis is the verdict for one prompt.
type Analysis struct {
	Blocked    bool     `json:"is_blocked"`
	RiskLevel  string   `json:"risk_level"`
	Confidence float64  `json:"confidence"`
	Categories []string `json:"detected_categories,omitempty"`
}

// Service analyzes prompts before dispatch.
type Service struct {
	moderator Moderator
	model     string
	logger    *slog.Logger
}

// New returns a Service that moderates with the given adapter and model.
// A nil moderator disables scanning; every prompt passes.
func New(moderator Moderator, model string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{moderator: moderator, model: model, logger: logger}
}

// Analyze checks one prompt. Moderation failures are logged and pass the
// prompt through: an upstream outage must not take chat down with it.
func (s *Service) Analyze(ctx context.Context, text, userID string) *Analysis {
	clean := &Analysis{RiskLevel: RiskLow}
	if s.moderator == nil || text == "" {
		return clean
	}

	input, err := json.Marshal(text)
	if err != nil {
		return clean
	}
	resp, err := s.moderator.ModerateContent(ctx, &gateway.ModerationRequest{
		Model: s.model,
		Input: input,
	})
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "security analysis failed open",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return clean
	}

	out := &Analysis{RiskLevel: RiskLow}
	for _, r := range resp.Results {
		if r.Flagged {
			out.Blocked = true
		}
		for cat, hit := range r.Categories {
			if hit {
				out.Categories = append(out.Categories, cat)
			}
		}
		for _, score := range r.CategoryScores {
			if score > out.Confidence {
				out.Confidence = score
			}
		}
	}
	switch {
	case out.Confidence >= highFloor:
		out.RiskLevel = RiskHigh
	case out.Confidence >= mediumFloor:
		out.RiskLevel = RiskMedium
	}

	if out.Blocked {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "prompt blocked",
			slog.String("user_id", userID),
			slog.String("risk_level", out.RiskLevel),
			slog.Any("categories", out.Categories),
		)
	}
	return out
}
