package wpcom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestClientGetEncodesQueryAndToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1.1/connect/site-info" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("url"); got != "http://example.com" {
			t.Errorf("url query = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"exists":true}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, Token: "secret"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out struct {
		Exists bool `json:"exists"`
	}
	if err := client.Get(context.Background(), "/connect/site-info", url.Values{"url": {"http://example.com"}}, &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !out.Exists {
		t.Fatal("exists = false, want true")
	}
}

func TestClientPostSendsJSONBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["path"] != "/jetpack/v4/settings/" {
			t.Errorf("body path = %v", body["path"])
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out map[string]bool
	if err := client.Post(context.Background(), "/jetpack-blogs/1/rest-api/", nil, map[string]any{"path": "/jetpack/v4/settings/"}, &out); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if !out["ok"] {
		t.Fatalf("out = %v", out)
	}
}

func TestClientReturnsHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"unauthorized","message":"no access"}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = client.Get(context.Background(), "/sites/1", nil, &struct{}{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusForbidden || httpErr.Code != "unauthorized" {
		t.Fatalf("http error = %+v", httpErr)
	}
}

func TestClientEmptyResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := client.Get(context.Background(), "/sites/1", nil, &struct{}{}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("error = %v, want ErrEmptyResponse", err)
	}
	if err := client.Get(context.Background(), "/sites/1", nil, nil); err != nil {
		t.Fatalf("nil out must ignore empty body: %v", err)
	}
}

func TestClientRateLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	client, err := New(Config{BaseURL: "http://127.0.0.1:1", RequestsPerSecond: 0.001, Burst: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	client.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.Get(ctx, "/sites/1", nil, nil); err == nil {
		t.Fatal("expected limiter error")
	}
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{BaseURL: "::not a url"}); err == nil {
		t.Fatal("expected base url error")
	}
}
