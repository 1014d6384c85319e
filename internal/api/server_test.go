package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ashish-dwi99/Engram-sub002/internal/auth"
	"github.com/Ashish-dwi99/Engram-sub002/internal/config"
	"github.com/Ashish-dwi99/Engram-sub002/internal/retrieval"
	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

const (
	localAddr  = "127.0.0.1:51000"
	remoteAddr = "203.0.113.7:51000"
)

func newTestServer(t *testing.T) (*Server, http.Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if _, err := st.Extend(); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	cfg := config.Default()
	engine := retrieval.NewEngine(st, st, retrieval.DefaultEngineOptions())
	srv := NewServer(cfg, st, engine, auth.NewGate(nil), auth.NewSessionManager(st, time.Hour))
	return srv, srv.Handler(), st
}

func doJSON(t *testing.T, h http.Handler, method, path, remote string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.RemoteAddr = remote
	for k, vs := range header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(into); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHealthOpenToEveryone(t *testing.T) {
	_, h, _ := newTestServer(t)

	w := doJSON(t, h, "GET", "/health", remoteAddr, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestSearchRequiresTokenForRemoteCallers(t *testing.T) {
	_, h, _ := newTestServer(t)

	req := map[string]string{"query": "coffee", "user_id": "u1"}
	w := doJSON(t, h, "POST", "/v1/search", remoteAddr, req, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Remote without token: status = %d, want 401", w.Code)
	}

	w = doJSON(t, h, "POST", "/v1/search", localAddr, req, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Local without token: status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
}

func TestSearchRejectsGarbageToken(t *testing.T) {
	_, h, _ := newTestServer(t)

	header := http.Header{"Authorization": {"Bearer deadbeef"}}
	req := map[string]string{"query": "coffee", "user_id": "u1"}
	w := doJSON(t, h, "POST", "/v1/search", remoteAddr, req, header)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", w.Code)
	}
}

func TestSessionIssuanceLockedToLocal(t *testing.T) {
	_, h, _ := newTestServer(t)

	req := map[string]any{"user_id": "u1"}
	w := doJSON(t, h, "POST", "/v1/sessions", remoteAddr, req, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Remote issuance: status = %d, want 403", w.Code)
	}

	w = doJSON(t, h, "POST", "/v1/sessions", localAddr, req, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Local issuance: status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var issued auth.Issued
	decodeBody(t, w, &issued)
	if issued.Token == "" {
		t.Fatal("No token issued")
	}

	// The minted token now authorizes a remote search.
	header := http.Header{"Authorization": {"Bearer " + issued.Token}}
	search := map[string]string{"query": "coffee", "user_id": "u1"}
	w = doJSON(t, h, "POST", "/v1/search", remoteAddr, search, header)
	if w.Code != http.StatusOK {
		t.Errorf("Token-bearing search: status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
}

func TestSessionIssuanceAdminKey(t *testing.T) {
	t.Setenv(auth.AdminKeyEnv, "s3cret")
	_, h, _ := newTestServer(t)

	req := map[string]any{"user_id": "u1"}
	w := doJSON(t, h, "POST", "/v1/sessions", localAddr, req, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Missing admin key: status = %d, want 403", w.Code)
	}

	header := http.Header{auth.HeaderAdminKey: {"s3cret"}}
	w = doJSON(t, h, "POST", "/v1/sessions", localAddr, req, header)
	if w.Code != http.StatusOK {
		t.Errorf("Correct admin key: status = %d, want 200", w.Code)
	}
}

func TestSearchValidation(t *testing.T) {
	_, h, _ := newTestServer(t)

	w := doJSON(t, h, "POST", "/v1/search", localAddr, map[string]string{"query": "coffee"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Missing user_id: status = %d, want 400", w.Code)
	}
}

func TestAddMemoryStampsProvenance(t *testing.T) {
	_, h, st := newTestServer(t)

	req := map[string]any{
		"user_id":    "u1",
		"agent_id":   "agent-a",
		"content":    "prefers window seats on flights",
		"source_app": "travel",
	}
	w := doJSON(t, h, "POST", "/v1/memories", localAddr, req, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp struct {
		ID         string `json:"id"`
		Provenance struct {
			SourceType string `json:"source_type"`
			SourceApp  string `json:"source_app"`
			CreatedAt  string `json:"created_at"`
		} `json:"provenance"`
	}
	decodeBody(t, w, &resp)
	if resp.ID == "" {
		t.Fatal("No memory id returned")
	}
	if resp.Provenance.SourceType != "mcp" {
		t.Errorf("source_type = %q, want mcp", resp.Provenance.SourceType)
	}
	if resp.Provenance.SourceApp != "travel" {
		t.Errorf("source_app = %q, want travel", resp.Provenance.SourceApp)
	}

	// The stamp is persisted on the stored row.
	results, err := st.SearchMemories("u1", "window seats", 5)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Got %d results, want 1", len(results))
	}
	if _, ok := results[0].Metadata["provenance"]; !ok {
		t.Error("Stored memory missing provenance metadata")
	}
}

func TestAddSceneAndSearchIntersection(t *testing.T) {
	_, h, _ := newTestServer(t)

	w := doJSON(t, h, "POST", "/v1/memories", localAddr, map[string]any{
		"user_id": "u1", "content": "kitchen remodel budget is 20k",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Add memory: status = %d", w.Code)
	}
	var added struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &added)

	w = doJSON(t, h, "POST", "/v1/scenes", localAddr, map[string]any{
		"user_id":    "u1",
		"title":      "remodel planning",
		"memory_ids": []string{added.ID},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Add scene: status = %d (body %s)", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "POST", "/v1/search", localAddr, map[string]any{
		"query": "remodel", "user_id": "u1",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Search: status = %d (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Results []struct {
			ID            string `json:"id"`
			EpisodicMatch bool   `json:"episodic_match"`
		} `json:"results"`
		Trace struct {
			Intersections int `json:"intersections"`
		} `json:"retrieval_trace"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("Got %d results, want 1", len(resp.Results))
	}
	if !resp.Results[0].EpisodicMatch {
		t.Error("Memory cited by a scene not marked as episodic match")
	}
	if resp.Trace.Intersections != 1 {
		t.Errorf("Intersections = %d, want 1", resp.Trace.Intersections)
	}
}

func TestVersionEndpoint(t *testing.T) {
	_, h, _ := newTestServer(t)

	w := doJSON(t, h, "GET", "/v1/version", remoteAddr, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["api_version"] != "v1" {
		t.Errorf("api_version = %q, want v1", body["api_version"])
	}
}

func TestTrailingSlashNormalized(t *testing.T) {
	_, h, _ := newTestServer(t)

	// The middleware matches /v1/search/ against the unexempt /v1/search.
	w := doJSON(t, h, "POST", "/v1/search/", remoteAddr, map[string]string{
		"query": "q", "user_id": "u1",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401 for unexempt path with trailing slash", w.Code)
	}
}
