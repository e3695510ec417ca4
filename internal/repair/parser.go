// Package repair turns a possibly malformed editor reply into an EditorResult.
//
// The reply is pushed through an ordered chain of stages. Rewrite stages
// transform the text and the result is decoded after each of them; the
// transformations accumulate. Extract stages try to build a result directly;
// a Raw extract stage reads the fence-stripped reply before the rewritten one.
// The first stage that yields a valid result wins.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/failure"
	"github.com/dnodevkis/tg-news-bot/internal/models"
)

// ErrUnparseable is returned when no stage produced a valid result.
var ErrUnparseable = errors.New("unparseable editor response")

// Stage is one step of the repair chain. Exactly one of Rewrite and Extract is set.
type Stage struct {
	Name    string
	Rewrite func(text string) string
	Extract func(text string) (*models.EditorResult, error)
	Raw     bool
}

// DefaultStages returns the chain in the order it is applied.
func DefaultStages() []Stage {
	return []Stage{
		{Name: "strip_fences", Rewrite: StripFences},
		{Name: "normalize_quotes", Rewrite: guard(NormalizeQuotes)},
		{Name: "close_strings", Rewrite: guard(CloseStrings)},
		{Name: "insert_separators", Rewrite: guard(InsertSeparators)},
		{Name: "fix_delimiters", Rewrite: guard(FixDelimiters)},
		{Name: "escape_in_strings", Extract: ExtractProtected},
		{Name: "extract_fields", Extract: ExtractFields, Raw: true},
	}
}

// Parser runs a repair chain.
type Parser struct {
	stages []Stage
	logger *zap.Logger
}

// NewParser creates a parser over DefaultStages.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{stages: DefaultStages(), logger: logger}
}

// Parse returns the first valid interpretation of raw.
func (p *Parser) Parse(raw string) (*models.EditorResult, error) {
	result, _, err := p.ParseStage(raw)
	return result, err
}

// ParseStage is Parse that also reports the name of the stage that succeeded.
func (p *Parser) ParseStage(raw string) (*models.EditorResult, string, error) {
	text := raw
	stripped := StripFences(raw)
	var lastErr error
	for i, st := range p.stages {
		var (
			result *models.EditorResult
			err    error
		)
		if st.Rewrite != nil {
			text = st.Rewrite(text)
			result, err = Decode(text)
		} else if st.Raw {
			result, err = st.Extract(stripped)
			if err != nil && text != stripped {
				result, err = st.Extract(text)
			}
		} else {
			result, err = st.Extract(text)
		}
		if err == nil {
			if i > 0 {
				p.logger.Info("Editor reply repaired", zap.String("stage", st.Name), zap.Int("stage_index", i+1))
			}
			return result, st.Name, nil
		}
		lastErr = err
		p.logger.Debug("Repair stage failed", zap.String("stage", st.Name), zap.Error(err))
	}

	p.logger.Error("Editor reply could not be parsed", zap.String("cleaned", text), zap.Error(lastErr))
	return nil, "", failure.New(failure.KindUnparseableResponse, "parse", fmt.Errorf("%w: %v", ErrUnparseable, lastErr))
}

// Decode parses text strictly and validates the result shape.
func Decode(text string) (*models.EditorResult, error) {
	var result models.EditorResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, err
	}
	if err := normalize(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func normalize(r *models.EditorResult) error {
	r.Resolution = strings.ToLower(strings.TrimSpace(r.Resolution))
	switch r.Resolution {
	case models.ResolutionDeny:
		r.Post = nil
		return nil
	case models.ResolutionApprove:
		if r.Post == nil {
			return errors.New("approve without post")
		}
		r.Post.Title = strings.TrimSpace(r.Post.Title)
		r.Post.Body = strings.TrimSpace(r.Post.Body)
		r.Post.Illustration = strings.TrimSpace(r.Post.Illustration)
		if r.Post.Title == "" || r.Post.Body == "" {
			return errors.New("approved post lacks title or body")
		}
		return nil
	default:
		return fmt.Errorf("unknown resolution %q", r.Resolution)
	}
}

// guard leaves text that already decodes untouched.
func guard(fn func(string) string) func(string) string {
	return func(text string) string {
		if _, err := Decode(text); err == nil {
			return text
		}
		return fn(text)
	}
}
