// Package ingest imports reporter notes dropped as JSON files into a directory.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

// ErrNotAList is returned for a file whose top level is not a JSON array.
var ErrNotAList = errors.New("file is not a list of records")

// Inserter stores reports, ignoring ids that already exist.
type Inserter interface {
	Insert(ctx context.Context, reports []models.RawReport) (int, error)
}

// record is one entry of a drop file.
type record struct {
	ID        json.RawMessage `json:"id"`
	GroupID   string          `json:"groupId"`
	EventDate string          `json:"eventDate"`
	Report    string          `json:"report"`
	IsPosted  *bool           `json:"isPosted"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Decode parses a drop file. Records with a missing id or group or an
// unreadable date are skipped and counted.
func Decode(data []byte, loc *time.Location) ([]models.RawReport, int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, 0, ErrNotAList
	}

	var records []record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, 0, err
	}

	reports := make([]models.RawReport, 0, len(records))
	skipped := 0
	for _, rec := range records {
		id := recordID(rec.ID)
		at, err := parseDate(rec.EventDate, loc)
		if id == "" || rec.GroupID == "" || err != nil {
			skipped++
			continue
		}
		reports = append(reports, models.RawReport{
			ID:        id,
			GroupID:   rec.GroupID,
			EventDate: at,
			Report:    CleanBody(rec.Report),
			IsPosted:  rec.IsPosted,
		})
	}
	return reports, skipped, nil
}

func recordID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// CleanBody strips HTML markup from a report body and collapses whitespace.
// Plain text passes through unchanged apart from trimming.
func CleanBody(body string) string {
	if !strings.ContainsAny(body, "<&") {
		return strings.TrimSpace(body)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(body)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Config holds ingestion settings.
type Config struct {
	Dir           string
	SweepInterval time.Duration
	Settle        time.Duration
	Location      *time.Location
}

// Ingester imports drop files into the report store.
type Ingester struct {
	repo   Inserter
	cfg    Config
	logger *zap.Logger
}

// New creates an Ingester.
func New(repo Inserter, cfg Config, logger *zap.Logger) *Ingester {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 600 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Ingester{repo: repo, cfg: cfg, logger: logger}
}

// ImportFile inserts the records of one file and deletes it on success.
func (i *Ingester) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	reports, skipped, err := Decode(data, i.cfg.Location)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if skipped > 0 {
		i.logger.Warn("Skipped invalid records", zap.String("file", path), zap.Int("skipped", skipped))
	}

	inserted := 0
	if len(reports) > 0 {
		inserted, err = i.repo.Insert(ctx, reports)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", filepath.Base(path), err)
		}
	}

	if err := os.Remove(path); err != nil {
		i.logger.Error("Failed to remove imported file", zap.String("file", path), zap.Error(err))
	}
	i.logger.Info("Report file imported",
		zap.String("file", path),
		zap.Int("records", len(reports)),
		zap.Int("inserted", inserted))
	return inserted, nil
}

// Sweep imports every *.json file in dir. A file that fails is left in place
// and does not stop the others.
func (i *Ingester) Sweep(ctx context.Context, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		n, err := i.ImportFile(ctx, path)
		if err != nil {
			i.logger.Error("Failed to import report file", zap.String("file", path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}
