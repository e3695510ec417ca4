package repair

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

// StripFences removes markdown code fences and any prose before the first brace.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "```"); start >= 0 {
		if brace := strings.IndexByte(text, '{'); brace >= 0 && brace < start {
			// Only a closing fence.
			text = strings.TrimSpace(text[:start])
		} else {
			inner := text[start+3:]
			// Drop the info string (```json).
			if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], "{[\"") {
				inner = inner[nl+1:]
			} else {
				inner = strings.TrimPrefix(inner, "json")
			}
			if end := strings.Index(inner, "```"); end >= 0 {
				inner = inner[:end]
			}
			text = strings.TrimSpace(inner)
		}
	}
	if i := strings.IndexByte(text, '{'); i > 0 {
		text = text[i:]
	}
	return text
}

// NormalizeQuotes rewrites single-quoted literals into double-quoted ones.
// Apostrophes inside double-quoted strings are left alone.
func NormalizeQuotes(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inDouble, inSingle, escaped := false, false, false
	for _, r := range text {
		switch {
		case escaped:
			escaped = false
			if inSingle && r == '\'' {
				// \' is not a JSON escape; the backslash is already written.
				b.WriteString("u0027")
				continue
			}
		case r == '\\' && (inDouble || inSingle):
			escaped = true
		case inDouble:
			if r == '"' {
				inDouble = false
			}
		case inSingle:
			if r == '\'' {
				inSingle = false
				r = '"'
			} else if r == '"' {
				b.WriteString(`\"`)
				continue
			}
		case r == '"':
			inDouble = true
		case r == '\'':
			inSingle = true
			r = '"'
		}
		b.WriteRune(r)
	}
	return b.String()
}

var keyAhead = regexp.MustCompile(`^\s*"[^"\n]*"\s*:`)

// CloseStrings terminates string literals left open at a line end, before a
// following `, "key":` or at the end of the text.
func CloseStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)

	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = false
		case '\n', '\r':
			closeOpenString(&b)
			inString = false
		case ',':
			if keyAhead.MatchString(text[i+1:]) {
				b.WriteByte('"')
				inString = false
			}
		}
		b.WriteByte(c)
	}
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		closeOpenString(&b)
	}
	return b.String()
}

// closeOpenString writes the closing quote, moving it before a trailing comma.
func closeOpenString(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRightFunc(s, unicode.IsSpace)
	if strings.HasSuffix(trimmed, ",") {
		head := strings.TrimRightFunc(trimmed[:len(trimmed)-1], unicode.IsSpace)
		b.Reset()
		b.WriteString(head)
		b.WriteString(`",`)
		return
	}
	b.Reset()
	b.WriteString(trimmed)
	b.WriteByte('"')
}

var separatorFixes = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\}(\s*\n\s*)\{`), "},$1{"},
	{regexp.MustCompile(`\](\s*\n\s*)\[`), "],$1["},
	{regexp.MustCompile(`\}(\s*\n\s*)"`), "},$1\""},
	{regexp.MustCompile(`\](\s*\n\s*)"`), "],$1\""},
	{regexp.MustCompile(`"([ \t]*\n\s*)"`), "\",$1\""},
	{regexp.MustCompile(`",(\s*)\}`), "\"$1}"},
	{regexp.MustCompile(`",(\s*)\]`), "\"$1]"},
}

// InsertSeparators adds commas missing between adjacent values on separate
// lines and drops trailing commas before a closing brace or bracket.
func InsertSeparators(text string) string {
	for _, fix := range separatorFixes {
		text = fix.re.ReplaceAllString(text, fix.repl)
	}
	return text
}

const maxDelimiterFixes = 16

// FixDelimiters inserts a comma where the decoder reports a missing delimiter,
// repeating while the error keeps moving forward.
func FixDelimiters(text string) string {
	last := -1
	for i := 0; i < maxDelimiterFixes; i++ {
		var v any
		err := json.Unmarshal([]byte(text), &v)
		var se *json.SyntaxError
		if err == nil || !errors.As(err, &se) || !missingDelimiter(se) {
			return text
		}
		pos := int(se.Offset) - 1
		if pos <= last || pos < 0 || pos >= len(text) || !startsValue(text[pos]) {
			return text
		}
		text = text[:pos] + "," + text[pos:]
		last = pos
	}
	return text
}

// startsValue reports whether c can begin the key or value that lost its comma.
func startsValue(c byte) bool {
	return c == '"' || c == '{' || c == '['
}

func missingDelimiter(se *json.SyntaxError) bool {
	msg := se.Error()
	return strings.Contains(msg, "after object key:value pair") || strings.Contains(msg, "after array element")
}

// Private-use runes stand in for structural characters inside strings.
var placeholders = map[byte]rune{
	',': '\uE000',
	':': '\uE001',
	'{': '\uE002',
	'}': '\uE003',
	'[': '\uE004',
	']': '\uE005',
}

var valueEnd = regexp.MustCompile(`^\s*(?:,\s*"[^"\n]*"\s*:|[}\]]|$)`)

// Protect re-delimits string values by structure: a quote closes a value only
// when a legal delimiter follows it. Quotes inside a value are escaped and
// structural characters are replaced with placeholders.
func Protect(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)

	prev := byte(0)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '"' {
			b.WriteByte(c)
			if !isSpace(c) {
				prev = c
			}
			continue
		}

		end := -1
		if prev == ':' {
			end = valueClose(text, i+1)
		}
		if end < 0 {
			end = plainClose(text, i+1)
		}
		b.WriteByte('"')
		maskValue(&b, text[i+1:end])
		if end < len(text) {
			b.WriteByte('"')
		}
		i = end
		prev = '"'
	}
	return b.String()
}

// valueClose finds the quote that structurally ends a value starting at from.
func valueClose(text string, from int) int {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case '"':
			if valueEnd.MatchString(text[j+1:]) {
				return j
			}
		}
	}
	return -1
}

// plainClose finds the next unescaped quote, or the end of text.
func plainClose(text string, from int) int {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case '"':
			return j
		}
	}
	return len(text)
}

func maskValue(b *strings.Builder, value string) {
	for k := 0; k < len(value); k++ {
		c := value[k]
		switch {
		case c == '\\' && k+1 < len(value):
			b.WriteByte(c)
			b.WriteByte(value[k+1])
			k++
		case c == '"':
			b.WriteString(`\"`)
		default:
			if ph, ok := placeholders[c]; ok {
				b.WriteRune(ph)
				continue
			}
			b.WriteByte(c)
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

var restorer = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(placeholders))
	for c, ph := range placeholders {
		pairs = append(pairs, string(ph), string(c))
	}
	return strings.NewReplacer(pairs...)
}()

// Restore undoes the placeholder substitution of Protect.
func Restore(text string) string {
	return restorer.Replace(text)
}

// ExtractProtected decodes the protected form of text and restores the
// masked characters in the decoded fields.
func ExtractProtected(text string) (*models.EditorResult, error) {
	result, err := Decode(Protect(text))
	if err != nil {
		return nil, err
	}
	result.Reason = Restore(result.Reason)
	if result.Post != nil {
		result.Post.Title = Restore(result.Post.Title)
		result.Post.Body = Restore(result.Post.Body)
		result.Post.Illustration = Restore(result.Post.Illustration)
	}
	return result, nil
}

var (
	resolutionField   = regexp.MustCompile(`"resolution"\s*:\s*"([^"]+)"`)
	reasonField       = regexp.MustCompile(`"reason"\s*:\s*"([^"]+)"`)
	titleField        = regexp.MustCompile(`"title"\s*:\s*"([^"]+)"`)
	bodyField         = regexp.MustCompile(`"body"\s*:\s*"([^"]+)"`)
	illustrationField = regexp.MustCompile(`"illustration"\s*:\s*"([^"]+)"`)
)

// ExtractFields pulls the expected fields out of the text by pattern and
// assembles a result. Fields that are not present are never invented.
func ExtractFields(text string) (*models.EditorResult, error) {
	resolution := firstMatch(resolutionField, text)
	if resolution == "" {
		return nil, errors.New("no resolution field")
	}

	result := &models.EditorResult{Resolution: resolution, Reason: firstMatch(reasonField, text)}
	if strings.EqualFold(strings.TrimSpace(resolution), models.ResolutionApprove) {
		result.Post = &models.PostDraft{
			Title:        firstMatch(titleField, text),
			Body:         firstMatch(bodyField, text),
			Illustration: firstMatch(illustrationField, text),
		}
	}
	if err := normalize(result); err != nil {
		return nil, err
	}
	return result, nil
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	// An unterminated value runs up to the next quote and picks up the separator.
	return strings.TrimRight(m[1], ", \t\n")
}
