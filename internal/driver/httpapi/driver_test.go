package httpapi

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"ex-calypso/pkg/calypso"
)

func TestParseRuntimeConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		raw              string
		want             parsedRuntimeConfig
		wantErrSubstring string
	}{
		{
			name: "defaults for empty config",
			want: parsedRuntimeConfig{
				addr:              defaultRuntimeAddr,
				readHeaderTimeout: defaultRuntimeReadHeaderTimeout,
				dispatchTimeout:   defaultRuntimeDispatchTimeout,
			},
		},
		{
			name: "explicit values",
			raw:  `{"addr":" :9090 ","read_header_timeout":"2s","dispatch_timeout":"500ms"}`,
			want: parsedRuntimeConfig{
				addr:              ":9090",
				readHeaderTimeout: 2 * time.Second,
				dispatchTimeout:   500 * time.Millisecond,
			},
		},
		{
			name:             "malformed json",
			raw:              `{"addr":`,
			wantErrSubstring: "unmarshal",
		},
		{
			name:             "invalid duration",
			raw:              `{"read_header_timeout":"soon"}`,
			wantErrSubstring: "parse read_header_timeout",
		},
		{
			name:             "non-positive duration",
			raw:              `{"dispatch_timeout":"0s"}`,
			wantErrSubstring: "must be > 0",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseRuntimeConfig([]byte(testCase.raw))
			if testCase.wantErrSubstring != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.wantErrSubstring) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("parseRuntimeConfig() = %+v, want %+v", got, testCase.want)
			}
		})
	}
}

func TestDriverStartServesUntilCanceled(t *testing.T) {
	t.Parallel()

	driver, err := BuildFromConfig("api", []byte(`{"addr":"127.0.0.1:0"}`), Deps{})
	if err != nil {
		t.Fatalf("BuildFromConfig() failed: %v", err)
	}
	if driver.Name() != "api" {
		t.Fatalf("Name() = %q, want api", driver.Name())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- driver.Start(ctx, dispatcherFunc(func(context.Context, *calypso.Action) error { return nil }))
	}()

	eventually(t, 2*time.Second, func() bool {
		return driver.Addr() != ""
	})

	client := &http.Client{Timeout: time.Second}
	t.Cleanup(client.CloseIdleConnections)
	response, err := client.Get("http://" + driver.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("GET /healthz status = %d", response.StatusCode)
	}
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}

	if err := driver.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() after stop failed: %v", err)
	}
}

func TestDriverStartRejectsNilDispatcher(t *testing.T) {
	t.Parallel()

	if err := NewDriver().Start(context.Background(), nil); err == nil {
		t.Fatal("expected nil dispatcher error")
	}
}
