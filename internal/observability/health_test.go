package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", status.Status)
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]HealthCheckFunc
		wantCode int
		wantBody string
	}{
		{
			name: "all healthy",
			checks: map[string]HealthCheckFunc{
				"store":    func(ctx context.Context) (bool, error) { return true, nil },
				"deepgram": func(ctx context.Context) (bool, error) { return true, nil },
			},
			wantCode: http.StatusOK,
			wantBody: "ready",
		},
		{
			name: "one failing",
			checks: map[string]HealthCheckFunc{
				"store":    func(ctx context.Context) (bool, error) { return false, errors.New("locked") },
				"deepgram": func(ctx context.Context) (bool, error) { return true, nil },
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadinessHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
			var status HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if status.Status != tt.wantBody {
				t.Errorf("Expected status '%s', got '%s'", tt.wantBody, status.Status)
			}
			if len(status.Dependencies) != len(tt.checks) {
				t.Errorf("Expected %d dependencies, got %d", len(tt.checks), len(status.Dependencies))
			}
		})
	}
}
