package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lexiqai/session-assistant/internal/domain"
	"github.com/lexiqai/session-assistant/internal/store"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "assistant dev") {
		t.Errorf("expected output to contain 'assistant dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	want := "assistant 1.0.0 (commit: abc123, built: 2026-01-01)\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := newRootCmd()
	want := map[string]bool{"version": false, "serve": false, "sessions": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestExecuteReturnsOneOnError(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"sessions", "show"})

	if code := execute(cmd); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}

func seedSessions(t *testing.T, path string, recs ...domain.SessionRecord) {
	t.Helper()
	s, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	for _, rec := range recs {
		if err := s.SaveSession(context.Background(), rec); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestSessionsListEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")

	out, err := runCmd(t, "sessions", "list", "--db", db)
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, "No sessions found.") {
		t.Errorf("expected empty message, got: %s", out)
	}
}

func TestSessionsList(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedSessions(t, db,
		domain.SessionRecord{
			SessionID:         "older",
			StartedAt:         start,
			StoppedAt:         start.Add(time.Minute),
			Platform:          domain.PlatformZoom,
			Language:          "en-US",
			DurationSeconds:   60,
			PerformanceReport: domain.PerformanceReport{SessionID: "older", OverallScore: 91},
			TermsCount:        4,
		},
		domain.SessionRecord{
			SessionID:         "newer",
			StartedAt:         start.Add(time.Hour),
			StoppedAt:         start.Add(time.Hour + time.Minute),
			Platform:          domain.PlatformGoogleMeet,
			Language:          "es-MX",
			DurationSeconds:   60,
			PerformanceReport: domain.PerformanceReport{SessionID: "newer", OverallScore: 77, Partial: true},
		},
	)

	out, err := runCmd(t, "sessions", "list", "--db", db)
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, "ID") || !strings.Contains(out, "SCORE") {
		t.Errorf("expected header row, got: %s", out)
	}
	if strings.Index(out, "newer") > strings.Index(out, "older") {
		t.Errorf("expected newest session first, got: %s", out)
	}
	if !strings.Contains(out, "77*") {
		t.Errorf("expected partial report marker, got: %s", out)
	}

	out, err = runCmd(t, "sessions", "list", "--db", db, "-n", "1")
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if strings.Contains(out, "older") {
		t.Errorf("expected limit to drop the older session, got: %s", out)
	}
}

func TestSessionsListRejectsNegativeLimit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")
	if _, err := runCmd(t, "sessions", "list", "--db", db, "--limit", "-1"); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestSessionsShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedSessions(t, db, domain.SessionRecord{
		SessionID:          "abc",
		StartedAt:          start,
		StoppedAt:          start.Add(2 * time.Minute),
		Platform:           domain.PlatformTeams,
		Language:           "en-US",
		DurationSeconds:    120,
		PerformanceReport:  domain.PerformanceReport{SessionID: "abc", OverallScore: 88},
		TranscriptionCount: 12,
		Notes:              "good pacing",
	})

	out, err := runCmd(t, "sessions", "show", "abc", "--db", db)
	if err != nil {
		t.Fatalf("sessions show failed: %v", err)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("expected JSON output, got: %s", out)
	}
	if rec.SessionID != "abc" || rec.TranscriptionCount != 12 || rec.Notes != "good pacing" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.PerformanceReport.OverallScore != 88 {
		t.Errorf("expected score 88, got %v", rec.PerformanceReport.OverallScore)
	}
}

func TestSessionsShowNotFound(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")

	_, err := runCmd(t, "sessions", "show", "missing", "--db", db)
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got: %v", err)
	}
}
