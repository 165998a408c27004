package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sagehq/sage/internal/testutil"
)

func newTestServer(runner TurnRunner, threads HistoryStore) *Server {
	return NewServer(ServerConfig{
		AuthSecret: []byte("test-secret"),
		Engine:     runner,
		Threads:    threads,
		Logger:     testutil.DiscardLogger(),
	})
}

func TestServer_HealthIsUnauthenticated(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeThreads{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServer_ChatRequiresToken(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeThreads{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"hi"}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestServer_ChatWithToken(t *testing.T) {
	runner := &fakeRunner{output: "hello"}
	s := newTestServer(runner, &fakeThreads{})

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+SignToken("alice", []byte("test-secret")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if runner.lastThread != "alice" {
		t.Errorf("thread = %q, want alice", runner.lastThread)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeThreads{})

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set("Authorization", "Bearer "+SignToken("alice", []byte("test-secret")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
