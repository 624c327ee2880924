package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexiqai/session-assistant/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "assistant.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, startedAt time.Time) domain.SessionRecord {
	return domain.SessionRecord{
		SessionID:       id,
		StartedAt:       startedAt,
		StoppedAt:       startedAt.Add(90 * time.Second),
		Platform:        domain.PlatformTeams,
		Language:        "es-MX",
		DurationSeconds: 90,
		PerformanceReport: domain.PerformanceReport{
			SessionID:    id,
			OverallScore: 82.5,
			Categories:   map[string]float64{"fluency": 90, "pace": 70},
			TopIssues:    []domain.Issue{{RuleID: "filler_words", Category: "fluency", Severity: "warning", Count: 3}},
			TotalWords:   180,
		},
		TranscriptionCount: 12,
		TermsCount:         4,
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rec := record("s1", started)
	rec.Notes = "consecutive interpreting"
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.StartedAt.Equal(rec.StartedAt) || !got.StoppedAt.Equal(rec.StoppedAt) {
		t.Errorf("Expected times %v/%v, got %v/%v", rec.StartedAt, rec.StoppedAt, got.StartedAt, got.StoppedAt)
	}
	if got.Platform != domain.PlatformTeams || got.Language != "es-MX" || got.Notes != rec.Notes {
		t.Errorf("Unexpected record %+v", got)
	}
	if got.TranscriptionCount != 12 || got.TermsCount != 4 {
		t.Errorf("Expected counts 12/4, got %d/%d", got.TranscriptionCount, got.TermsCount)
	}
	if got.PerformanceReport.OverallScore != 82.5 || got.PerformanceReport.Categories["pace"] != 70 {
		t.Errorf("Unexpected report %+v", got.PerformanceReport)
	}
	if len(got.PerformanceReport.TopIssues) != 1 || got.PerformanceReport.TopIssues[0].Count != 3 {
		t.Errorf("Expected top issues to round-trip, got %+v", got.PerformanceReport.TopIssues)
	}
}

func TestSQLiteStore_SaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := record("s1", time.Now())
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	rec.TermsCount = 9
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}

	all, err := s.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 1 || all[0].TermsCount != 9 {
		t.Errorf("Expected one replaced record, got %+v", all)
	}
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveSession(ctx, record(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	got, err := s.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "c" || got[1].SessionID != "b" {
		t.Errorf("Expected [c b], got %+v", got)
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetSession(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SaveSession(ctx, record("s1", time.Now())); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	if _, err := s.GetSession(ctx, "s1"); err != nil {
		t.Errorf("Expected record to survive reopen, got %v", err)
	}
}
