package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mecaparts/knowledge-gateway/internal/ingest"
	"github.com/mecaparts/knowledge-gateway/internal/intent"
	"github.com/mecaparts/knowledge-gateway/internal/jobs"
	"github.com/mecaparts/knowledge-gateway/internal/knowledge"
	"github.com/mecaparts/knowledge-gateway/internal/retrieval"
	apperrors "github.com/mecaparts/knowledge-gateway/pkg/errors"
	"github.com/mecaparts/knowledge-gateway/pkg/resilience"
)

// memStore is a minimal in-memory knowledge.Store.
type memStore struct {
	docs   []*knowledge.Document
	nextID int
}

func (s *memStore) ActiveCountByDomain(ctx context.Context, domain string) (int, error) {
	n := 0
	for _, d := range s.docs {
		if d.Domain == domain && d.Status == knowledge.StatusActive {
			n++
		}
	}
	return n, nil
}

func (s *memStore) FindActiveByFingerprint(ctx context.Context, fp string) (*knowledge.Document, error) {
	for _, d := range s.docs {
		if d.Fingerprint == fp && d.Status == knowledge.StatusActive {
			return d, nil
		}
	}
	return nil, nil
}

func (s *memStore) Upsert(ctx context.Context, doc *knowledge.Document) (*knowledge.Document, error) {
	s.nextID++
	doc.ID = fmt.Sprintf("doc-%d", s.nextID)
	s.docs = append(s.docs, doc)
	return doc, nil
}

func (s *memStore) ListActive(ctx context.Context) ([]knowledge.Document, error) {
	var out []knowledge.Document
	for _, d := range s.docs {
		if d.Status == knowledge.StatusActive {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) Archive(ctx context.Context, id, dupOf string) error { return nil }

// memJobStore implements jobs.Store over a map.
type memJobStore struct {
	jobs map[string]*jobs.Job
}

func (s *memJobStore) Put(ctx context.Context, job *jobs.Job) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrJobNotFound, 404, "job %s not found", id)
	}
	return job, nil
}

func (s *memJobStore) List(ctx context.Context) ([]*jobs.Job, error) {
	out := make([]*jobs.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *memJobStore) AcquireWebSlot(ctx context.Context, jobID string) (bool, error) { return true, nil }
func (s *memJobStore) ReleaseWebSlot(ctx context.Context, jobID string) error         { return nil }

func newQueryHandler(t *testing.T, backend http.HandlerFunc) (*Handler, *intent.Stats) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	breaker := resilience.NewCircuitBreaker("test", resilience.CircuitBreakerConfig{})
	client := retrieval.NewClient(srv.URL, 5*time.Second, breaker, nil)
	stats := intent.NewStats(nil)

	store := &memStore{}
	jobStore := &memJobStore{jobs: make(map[string]*jobs.Job)}
	orchestrator := jobs.NewOrchestrator(jobs.Config{}, jobStore, nil, nil, nil, nil, nil)
	return New(
		ingest.NewPipeline(store, nil),
		ingest.NewCleanup(store),
		nil, "intake",
		orchestrator, jobStore,
		nil, client, stats,
	), stats
}

func TestIngestDocumentEndpoint(t *testing.T) {
	h, _ := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {})

	body := `{
		"title": "Disques de frein",
		"content": "Les disques ventilés dissipent la chaleur.",
		"source": "gammes.disques-de-frein",
		"truth_level": "L1",
		"domain": "freinage",
		"category": "catalog"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.IngestDocument(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Decision ingest.Decision    `json:"decision"`
		Document knowledge.Document `json:"document"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Decision.Outcome != ingest.OutcomeAcceptUpsert {
		t.Fatalf("outcome = %s, want accept", resp.Decision.Outcome)
	}
	if resp.Document.ID == "" {
		t.Fatal("document stored without id")
	}
}

func TestIngestDocumentValidation(t *testing.T) {
	h, _ := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing fields", `{"title": "x"}`},
		{"bad truth level", `{"title":"x","content":"y","source":"gammes.z","truth_level":"L9","category":"catalog"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.IngestDocument(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestQueryEndpointClassifiesAndAnswers(t *testing.T) {
	var gotFilters retrieval.SearchFilters
	h, stats := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Filters retrieval.SearchFilters `json:"filters"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotFilters = req.Filters
		w.Write([]byte(`{"answer":"Sous trente jours.","sources":[]}`))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"message": "comment retourner un article ?"}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Intent intent.Classification `json:"intent"`
		Answer string                `json:"answer"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Intent.UserIntent != intent.IntentPolicy {
		t.Fatalf("intent = %s, want policy", resp.Intent.UserIntent)
	}
	if resp.Answer != "Sous trente jours." {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(gotFilters.Categories) != 1 || gotFilters.Categories[0] != "policy" {
		t.Fatalf("backend received filters %+v, want policy category", gotFilters)
	}
	if stats.Snapshot()["policy"].Count != 1 {
		t.Fatal("classification not recorded in stats")
	}
}

func TestQueryEndpointRetrievalDown(t *testing.T) {
	h, _ := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"message":"prix"}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestQueryStreamEmitsFrames(t *testing.T) {
	h, _ := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"Oui tout à fait.","sources":[{"source":"gammes/freins.md","score":0.8}]}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query/stream?q=prix+plaquettes", nil)
	rec := httptest.NewRecorder()
	h.QueryStream(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var types []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame intent.Frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		types = append(types, string(frame.Type))
	}
	if len(types) < 3 {
		t.Fatalf("frame types = %v, want metadata, chunks, sources, done", types)
	}
	if types[0] != "metadata" || types[len(types)-1] != "done" {
		t.Fatalf("frame types = %v", types)
	}
}

func TestQueryStreamErrorFrame(t *testing.T) {
	h, _ := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/query/stream?q=prix", nil)
	rec := httptest.NewRecorder()
	h.QueryStream(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"error"`) {
		t.Fatalf("body = %s, want an error frame", body)
	}
	if strings.Contains(body, `"type":"done"`) {
		t.Fatal("done frame emitted after error")
	}
}

func TestGetJobNotFound(t *testing.T) {
	h, _ := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDedupCleanupInvalidMode(t *testing.T) {
	h, _ := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/dedup?mode=wipe", nil)
	rec := httptest.NewRecorder()
	h.DedupCleanup(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIntentStatsEndpoint(t *testing.T) {
	h, stats := newQueryHandler(t, func(w http.ResponseWriter, r *http.Request) {})
	stats.Record(intent.Classify("prix plaquettes"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/intents/stats", nil)
	rec := httptest.NewRecorder()
	h.IntentStats(rec, req)

	var resp struct {
		Intents map[string]intent.IntentStat `json:"intents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Intents["cost"].Count != 1 {
		t.Fatalf("intents = %+v, want cost count 1", resp.Intents)
	}
}
