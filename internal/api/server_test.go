package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/h1v3-io/ticketbot/internal/draft"
	"github.com/h1v3-io/ticketbot/internal/logbuf"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

func newStore(t *testing.T, drafts ...*protocol.Draft) *draft.FileStore {
	t.Helper()
	store, err := draft.NewFileStore(filepath.Join(t.TempDir(), draft.DefaultFileName), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range drafts {
		if err := store.Put(d); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func newTestServer(deps Deps, key string) *Server {
	return NewServer(Config{Host: "127.0.0.1", Port: 0, Key: key}, deps, nil)
}

func serve(srv *Server, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func sampleDrafts() []*protocol.Draft {
	return []*protocol.Draft{
		{Key: "C1_1.0", Mode: protocol.ModeReview, Status: protocol.DraftPending, UserID: "U1", Title: "Login broken"},
		{Key: "C1_2.0", Mode: protocol.ModeAuto, Status: protocol.DraftFailed, UserID: "U2", Title: "Button misaligned"},
		{Key: "C2_3.0", Mode: protocol.ModeReview, Status: protocol.DraftCreating, UserID: "U1", Title: "Export times out"},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t, sampleDrafts()...), Ingress: "socket"}, "")
	w := serve(srv, "GET", "/api/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body HealthResponse
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "ok" || body.Ingress != "socket" || body.Pending != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestListDrafts(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t, sampleDrafts()...)}, "")
	w := serve(srv, "GET", "/api/drafts", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var drafts []protocol.Draft
	json.NewDecoder(w.Body).Decode(&drafts)
	if len(drafts) != 3 {
		t.Errorf("got %d drafts, want 3", len(drafts))
	}
}

func TestListDrafts_Filters(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t, sampleDrafts()...)}, "")

	tests := []struct {
		query string
		want  int
	}{
		{"?status=failed", 1},
		{"?user=U1", 2},
		{"?mode=auto", 1},
		{"?user=U1&status=pending", 1},
		{"?limit=2", 2},
	}
	for _, tt := range tests {
		w := serve(srv, "GET", "/api/drafts"+tt.query, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, w.Code)
		}
		var drafts []protocol.Draft
		json.NewDecoder(w.Body).Decode(&drafts)
		if len(drafts) != tt.want {
			t.Errorf("%s: got %d drafts, want %d", tt.query, len(drafts), tt.want)
		}
	}
}

func TestListDrafts_Empty(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t)}, "")
	w := serve(srv, "GET", "/api/drafts", nil)
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestListDrafts_BadStatus(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t)}, "")
	w := serve(srv, "GET", "/api/drafts?status=archived", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetDraft(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t, sampleDrafts()...)}, "")
	w := serve(srv, "GET", "/api/drafts/C1_1.0", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var d protocol.Draft
	json.NewDecoder(w.Body).Decode(&d)
	if d.Title != "Login broken" {
		t.Errorf("title = %q", d.Title)
	}
}

func TestGetDraft_NotFound(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t)}, "")
	w := serve(srv, "GET", "/api/drafts/C9_9.9", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteDraft(t *testing.T) {
	store := newStore(t, sampleDrafts()...)
	srv := newTestServer(Deps{Drafts: store}, "")

	w := serve(srv, "DELETE", "/api/drafts/C1_2.0", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if _, err := store.Get("C1_2.0"); err == nil {
		t.Error("draft still present after delete")
	}
}

func TestDeleteDraft_Creating(t *testing.T) {
	store := newStore(t, sampleDrafts()...)
	srv := newTestServer(Deps{Drafts: store}, "")

	w := serve(srv, "DELETE", "/api/drafts/C2_3.0", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if _, err := store.Get("C2_3.0"); err != nil {
		t.Errorf("creating draft was removed: %v", err)
	}
}

func TestDeleteDraft_NotFound(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t)}, "")
	w := serve(srv, "DELETE", "/api/drafts/C9_9.9", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetLogs(t *testing.T) {
	buf := logbuf.New(10)
	base := time.UnixMilli(1_700_000_000_000)
	buf.Write(logbuf.Entry{Time: base, Level: "INFO", Message: "reaction received", Component: "bot", Key: "C1_1.0"})
	buf.Write(logbuf.Entry{Time: base.Add(time.Second), Level: "ERROR", Message: "jira create failed", Component: "bot", Key: "C1_2.0"})
	buf.Write(logbuf.Entry{Time: base.Add(2 * time.Second), Level: "INFO", Message: "api server starting", Component: "api"})

	srv := newTestServer(Deps{Drafts: newStore(t), Logs: buf}, "")

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?level=error", 1},
		{"?component=bot", 2},
		{"?key=C1_1.0", 1},
		{"?q=jira", 1},
		{"?limit=1", 1},
		{"?since=1700000000500", 2},
	}
	for _, tt := range tests {
		w := serve(srv, "GET", "/api/logs"+tt.query, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, w.Code)
		}
		var entries []logbuf.Entry
		json.NewDecoder(w.Body).Decode(&entries)
		if len(entries) != tt.want {
			t.Errorf("%s: got %d entries, want %d", tt.query, len(entries), tt.want)
		}
	}
}

func TestGetLogs_NoBuffer(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t)}, "")
	w := serve(srv, "GET", "/api/logs", nil)
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ticketbot_up 1\n"))
	})
	srv := newTestServer(Deps{Drafts: newStore(t), Metrics: metrics}, "secret")
	w := serve(srv, "GET", "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ticketbot_up") {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

type mountFunc func(mux *http.ServeMux)

func (f mountFunc) Register(mux *http.ServeMux) { f(mux) }

func TestSlackRoutesSkipAuth(t *testing.T) {
	slack := mountFunc(func(mux *http.ServeMux) {
		mux.HandleFunc("POST /slack/events", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	srv := newTestServer(Deps{Drafts: newStore(t), Slack: slack}, "secret")
	w := serve(srv, "POST", "/slack/events", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuth_Required(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t, sampleDrafts()...)}, "secret-key")

	w := serve(srv, "GET", "/api/drafts", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", w.Code)
	}

	w = serve(srv, "GET", "/api/drafts", map[string]string{"Authorization": "Bearer wrong-key"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}

	w = serve(srv, "GET", "/api/drafts", map[string]string{"Authorization": "Bearer secret-key"})
	if w.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", w.Code)
	}

	w = serve(srv, "DELETE", "/api/drafts/C1_1.0", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("delete without auth: status = %d, want 401", w.Code)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t)}, "secret-key")
	w := serve(srv, "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health should not require auth: status = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(Deps{Drafts: newStore(t)}, "")
	w := serve(srv, "OPTIONS", "/api/drafts", nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Errorf("CORS methods = %q", got)
	}
}
