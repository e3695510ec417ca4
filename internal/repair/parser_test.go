package repair

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/failure"
	"github.com/dnodevkis/tg-news-bot/internal/models"
)

const validApprove = `{
  "resolution": "approve",
  "post": {
    "title": "КОТ В БАШНЕ МАГОВ",
    "body": "По словам очевидцев, кот занял кресло архимага.",
    "illustration": "watercolor illustration of a cat light sepia effect"
  }
}`

func approved(title, body, illustration string) *models.EditorResult {
	return &models.EditorResult{
		Resolution: models.ResolutionApprove,
		Post:       &models.PostDraft{Title: title, Body: body, Illustration: illustration},
	}
}

func TestParseStages(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		stage string
		want  *models.EditorResult
	}{
		{
			name:  "valid json",
			raw:   validApprove,
			stage: "strip_fences",
			want:  approved("КОТ В БАШНЕ МАГОВ", "По словам очевидцев, кот занял кресло архимага.", "watercolor illustration of a cat light sepia effect"),
		},
		{
			name:  "code fence",
			raw:   "```json\n{\"resolution\": \"deny\", \"reason\": \"нет сенсации\"}\n```",
			stage: "strip_fences",
			want:  &models.EditorResult{Resolution: models.ResolutionDeny, Reason: "нет сенсации"},
		},
		{
			name:  "prose before object",
			raw:   "Вот ответ: {\"resolution\": \"deny\"}",
			stage: "strip_fences",
			want:  &models.EditorResult{Resolution: models.ResolutionDeny},
		},
		{
			name:  "single quotes",
			raw:   `{'resolution': 'deny', 'reason': 'скучно'}`,
			stage: "normalize_quotes",
			want:  &models.EditorResult{Resolution: models.ResolutionDeny, Reason: "скучно"},
		},
		{
			name:  "unterminated title on one line",
			raw:   `{"resolution": "approve", "post": {"title": "X, "body": "Y"}}`,
			stage: "close_strings",
			want:  approved("X", "Y", ""),
		},
		{
			name: "unterminated title at line end",
			raw: "{\n  \"resolution\": \"approve\",\n  \"post\": {\n    \"title\": \"ЗАГОЛОВОК,\n" +
				"    \"body\": \"Текст новости.\"\n  }\n}",
			stage: "close_strings",
			want:  approved("ЗАГОЛОВОК", "Текст новости.", ""),
		},
		{
			name: "missing comma after object",
			raw: "{\n  \"resolution\": \"approve\",\n  \"post\": {\n    \"title\": \"T\",\n    \"body\": \"B\"\n  }\n" +
				"  \"reason\": \"ok\"\n}",
			stage: "insert_separators",
			want: &models.EditorResult{
				Resolution: models.ResolutionApprove,
				Reason:     "ok",
				Post:       &models.PostDraft{Title: "T", Body: "B"},
			},
		},
		{
			name:  "missing comma on one line",
			raw:   `{"resolution": "approve" "post": {"title": "T", "body": "B"}}`,
			stage: "fix_delimiters",
			want:  approved("T", "B", ""),
		},
		{
			name: "unescaped quotes inside value",
			raw: `{"resolution": "approve", "post": {"title": "ЗАГОЛОВОК", "body": "Он сказал "привет", и ушёл", ` +
				`"illustration": "watercolor illustration of a cat light sepia effect"}}`,
			stage: "escape_in_strings",
			want:  approved("ЗАГОЛОВОК", `Он сказал "привет", и ушёл`, "watercolor illustration of a cat light sepia effect"),
		},
		{
			name:  "truncated object",
			raw:   `{"resolution": "approve", "post": {"title": "T", "body": "B", "illustration": "I"`,
			stage: "extract_fields",
			want:  approved("T", "B", "I"),
		},
		{
			name:  "unterminated title before apostrophe",
			raw:   `{"resolution": "approve", "post": {"title": "X, "body": "It's Y"}}`,
			stage: "extract_fields",
			want:  approved("X", "It's Y", ""),
		},
	}

	p := NewParser(zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stage, err := p.ParseStage(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.stage, stage)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseUnparseable(t *testing.T) {
	p := NewParser(zap.NewNop())

	for _, raw := range []string{
		"",
		"Извините, я не могу выполнить этот запрос.",
		`{"resolution": "approve", "post": {"title": "Только заголовок"}}`,
		`{"resolution": "maybe"}`,
	} {
		_, err := p.Parse(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrUnparseable), raw)
		assert.Equal(t, failure.KindUnparseableResponse, failure.KindOf(err), raw)
	}
}

func TestParseMatchesFirstStageOnValidInput(t *testing.T) {
	p := NewParser(zap.NewNop())
	inputs := []string{
		validApprove,
		`{"resolution":"deny"}`,
		"```json\n" + validApprove + "\n```",
	}

	for _, raw := range inputs {
		direct, err := Decode(StripFences(raw))
		require.NoError(t, err)

		chained, err := p.Parse(raw)
		require.NoError(t, err)
		if diff := cmp.Diff(direct, chained); diff != "" {
			t.Errorf("chain differs from first stage (-direct +chained):\n%s", diff)
		}
	}
}

func TestRewriteStagesAreIdempotent(t *testing.T) {
	samples := []string{
		validApprove,
		`{'resolution': 'deny', 'reason': 'скучно'}`,
		`{"resolution": "approve", "post": {"title": "X, "body": "Y"}}`,
		"{\n  \"post\": {\n    \"title\": \"T\"\n  }\n  \"resolution\": \"deny\"\n}",
		`{"resolution": "approve" "post": {"title": "T", "body": "B"}}`,
		"```json\n{\"resolution\": \"deny\"}\n```",
	}

	for _, st := range DefaultStages() {
		if st.Rewrite == nil {
			continue
		}
		for _, s := range samples {
			once := st.Rewrite(s)
			assert.Equal(t, once, st.Rewrite(once), "stage %s on %q", st.Name, s)
		}
	}
}

func TestRewriteStagesKeepParseableText(t *testing.T) {
	for _, st := range DefaultStages()[1:] {
		if st.Rewrite == nil {
			continue
		}
		assert.Equal(t, validApprove, st.Rewrite(validApprove), st.Name)
	}
}

func TestProtectRestoreRoundTrip(t *testing.T) {
	text := `{"body": "a, b: {c} [d]"}`
	protected := Protect(text)

	assert.NotContains(t, protected[len(`{"body": "`):], ",")
	assert.Equal(t, text, Restore(protected))
}

func TestNormalizeQuotesKeepsApostrophesInStrings(t *testing.T) {
	in := `{"body": "it's fine", 'resolution': 'deny'}`
	assert.Equal(t, `{"body": "it's fine", "resolution": "deny"}`, NormalizeQuotes(in))
}
