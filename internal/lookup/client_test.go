package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ppiankov/zsr/internal/model"
	"go.uber.org/zap"
)

func newTestClient(endpoint string, timeout time.Duration) *Client {
	return NewClient(
		model.LookupConfig{Endpoint: endpoint, Timeout: timeout, MaxBodyBytes: 1 << 20},
		model.HTTPConfig{UserAgent: "zsr-test"},
		zap.NewNop(),
	)
}

// encodedResponse wraps respMap the way Site Review does: as a JSON string
func encodedResponse(t *testing.T, respMap map[string]any) string {
	t.Helper()
	inner, err := json.Marshal(map[string]any{"respMap": respMap})
	if err != nil {
		t.Fatal(err)
	}
	outer, err := json.Marshal(map[string]string{"responseData": string(inner)})
	if err != nil {
		t.Fatal(err)
	}
	return string(outer)
}

func TestClient_Lookup_Success(t *testing.T) {
	var gotURLs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}
		if ua := r.Header.Get("User-Agent"); ua != "zsr-test" {
			t.Errorf("Expected user agent zsr-test, got %s", ua)
		}

		var body struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		gotURLs = body.URLs

		_, _ = fmt.Fprint(w, encodedResponse(t, map[string]any{
			"bad.com":   map[string]any{"threatName": "Phishing", "zurldblist": []string{"MALWARE_SITE"}},
			"zoom.us":   map[string]any{"threatName": nil, "zurldblist": []string{"GLOBAL_INT_ZOOM"}},
			"plain.com": map[string]any{"threatName": "Not Available", "zurldblist": nil},
		}))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)
	results, err := client.Lookup(context.Background(), []string{"bad.com", "zoom.us", "plain.com"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(gotURLs) != 3 {
		t.Errorf("Expected 3 URLs in request, got %d", len(gotURLs))
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results["bad.com"].Threat != "Phishing" {
		t.Errorf("Expected Phishing threat, got %q", results["bad.com"].Threat)
	}
	if results["zoom.us"].Threat != "" {
		t.Errorf("Expected null threat to become empty, got %q", results["zoom.us"].Threat)
	}
	if results["plain.com"].Threat != "" {
		t.Errorf("Expected 'Not Available' to become empty, got %q", results["plain.com"].Threat)
	}
	if results["plain.com"].Categories == nil || len(results["plain.com"].Categories) != 0 {
		t.Errorf("Expected empty category list, got %#v", results["plain.com"].Categories)
	}
}

func TestClient_Lookup_EmbeddedObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"responseData": {"respMap": {"a.com": {"threatName": "Adware", "zurldblist": ["ADWARE"]}}}}`)
	}))
	defer server.Close()

	results, err := newTestClient(server.URL, 5*time.Second).Lookup(context.Background(), []string{"a.com"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if results["a.com"].Threat != "Adware" {
		t.Errorf("Unexpected verdict: %+v", results["a.com"])
	}
}

func TestClient_Lookup_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 5*time.Second).Lookup(context.Background(), []string{"a.com"})
	if err == nil {
		t.Fatal("Expected error for 503, got nil")
	}
}

func TestClient_Lookup_Malformed(t *testing.T) {
	payloads := map[string]string{
		"not json":          `<html>blocked</html>`,
		"missing data":      `{"status": "ok"}`,
		"data not json":     `{"responseData": "oops"}`,
		"missing respMap":   `{"responseData": "{\"other\": 1}"}`,
		"wrong entry shape": `{"responseData": "{\"respMap\": {\"a.com\": 5}}"}`,
		"null responseData": `{"responseData": null}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, payload)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, 5*time.Second).Lookup(context.Background(), []string{"a.com"})
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("Expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestClient_Lookup_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(server.URL, 100*time.Millisecond).Lookup(context.Background(), []string{"a.com"})
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Timeout was not enforced, call took %v", elapsed)
	}
}
