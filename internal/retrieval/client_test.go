package retrieval

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/mecaparts/knowledge-gateway/pkg/errors"
	"github.com/mecaparts/knowledge-gateway/pkg/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, threshold int) (*Client, *httptest.Server, *resilience.CircuitBreaker) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	breaker := resilience.NewCircuitBreaker("retrieval-test", resilience.CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     time.Minute,
	})
	return NewClient(srv.URL, 5*time.Second, breaker, nil), srv, breaker
}

func TestAnswerSuccess(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/answer" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"Oui.","sources":[{"source":"gammes/freins.md","score":0.9}]}`))
	}, 5)

	resp, err := client.Answer(context.Background(), "question", &SearchFilters{TruthLevels: []string{"L1"}})
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if resp.Answer != "Oui." || len(resp.Sources) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestCallOpensBreakerAfterConsecutiveFailures(t *testing.T) {
	requests := 0
	client, _, breaker := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "boom", http.StatusInternalServerError)
	}, 5)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := client.Search(ctx, "q", 3, nil)
		if !errors.Is(err, apperrors.ErrRetrievalUnavailable) {
			t.Fatalf("Search() #%d = %v, want ErrRetrievalUnavailable", i, err)
		}
	}
	if breaker.GetState() != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", breaker.GetState())
	}

	// The guarded rejection never reaches the backend and is not counted as
	// a new failure.
	_, err := client.Search(ctx, "q", 3, nil)
	if !errors.Is(err, apperrors.ErrRetrievalUnavailable) {
		t.Fatalf("Search() while open = %v, want ErrRetrievalUnavailable", err)
	}
	if requests != 5 {
		t.Fatalf("backend saw %d requests, want 5", requests)
	}
}

func TestCallRecoversAfterSuccess(t *testing.T) {
	fail := true
	client, _, breaker := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"hits":[]}`))
	}, 2)

	ctx := context.Background()
	client.Search(ctx, "q", 3, nil)
	fail = false
	if _, err := client.Search(ctx, "q", 3, nil); err != nil {
		t.Fatalf("Search() after recovery = %v", err)
	}
	if breaker.GetState() != resilience.StateClosed {
		t.Fatalf("breaker state = %v, want closed", breaker.GetState())
	}
}

func TestGetJobStatusTerminal(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/abc" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"done","returnCode":0,"logTail":["ok"]}`))
	}, 5)

	status, err := client.GetJobStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetJobStatus() error: %v", err)
	}
	if !status.Terminal() {
		t.Fatalf("status %+v not terminal", status)
	}
	if status.ReturnCode == nil || *status.ReturnCode != 0 {
		t.Fatalf("return code = %v, want 0", status.ReturnCode)
	}
}

func TestJobStatusTerminalStates(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"running", false},
		{"queued", false},
		{"done", true},
		{"failed", true},
	}
	for _, tt := range tests {
		s := &JobStatus{Status: tt.status}
		if got := s.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
