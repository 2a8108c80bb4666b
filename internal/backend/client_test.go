package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(url, apiKey string) *Client {
	return NewClient(url, apiKey, nil, 5*time.Second, zap.NewNop())
}

func TestSubmitDecodesResult(t *testing.T) {
	var gotBody map[string]any
	var gotKey, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get(APIKeyHeader)
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"success":true,"message":"Metrics submitted successfully","status_code":202,"request_id":"abc","response_body":{"errors":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL+"/", "secret")
	result, err := client.Submit(context.Background(), PathMetricsSubmitJSON, map[string]any{"payload": map[string]any{"series": []any{}}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if gotPath != PathMetricsSubmitJSON {
		t.Errorf("Expected path %s, got %s", PathMetricsSubmitJSON, gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("Expected API key header, got %q", gotKey)
	}
	if _, ok := gotBody["payload"]; !ok {
		t.Errorf("Expected payload envelope, got %v", gotBody)
	}

	if !result.Success || result.StatusCode != 202 || result.RequestID != "abc" {
		t.Errorf("Unexpected result %+v", result)
	}
	if result.LatencyMS <= 0 {
		t.Error("Expected latency to be filled locally")
	}
	if string(result.ResponseBody) != `{"errors":[]}` {
		t.Errorf("Unexpected response body %s", result.ResponseBody)
	}
}

func TestSubmitOmitsAPIKeyWhenUnset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header[http.CanonicalHeaderKey(APIKeyHeader)]; ok {
			t.Error("API key header should not be sent")
		}
		w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL, "").Submit(context.Background(), PathLogsSubmitJSON, map[string]any{}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestSubmitNonResultResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantHint    string
		wantBody    string
	}{
		{
			name:        "fastapi detail",
			status:      http.StatusBadRequest,
			body:        `{"detail":"DD_API_KEY not configured"}`,
			wantMessage: "Backend returned HTTP 400: DD_API_KEY not configured",
			wantHint:    errorHints[http.StatusBadRequest],
			wantBody:    `{"detail":"DD_API_KEY not configured"}`,
		},
		{
			name:        "html gateway page",
			status:      http.StatusBadGateway,
			body:        "<html>bad gateway</html>",
			wantMessage: "Backend returned HTTP 502",
			wantHint:    errorHints[http.StatusBadGateway],
			wantBody:    `"<html>bad gateway</html>"`,
		},
		{
			name:        "empty body with unknown status",
			status:      http.StatusTeapot,
			body:        "",
			wantMessage: "Backend returned HTTP 418",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result, err := newTestClient(server.URL, "").Submit(context.Background(), PathAgentFileSubmit, map[string]any{})
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			if result.Success {
				t.Error("Expected failed result")
			}
			if result.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, result.StatusCode)
			}
			if result.Message != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, result.Message)
			}
			if result.ErrorHint != tt.wantHint {
				t.Errorf("Expected hint %q, got %q", tt.wantHint, result.ErrorHint)
			}
			if string(result.ResponseBody) != tt.wantBody {
				t.Errorf("Expected body %s, got %s", tt.wantBody, result.ResponseBody)
			}
		})
	}
}

func TestSubmitFailedResultGetsHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"warning":true,"warning_message":"stale","message":"Failed to submit metrics","status_code":429}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, "").Submit(context.Background(), PathMetricsSubmitJSON, map[string]any{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.ErrorHint != errorHints[http.StatusTooManyRequests] {
		t.Errorf("Expected rate limit hint, got %q", result.ErrorHint)
	}
	if result.Warning || result.WarningMessage != "" {
		t.Errorf("Expected the warning to be dropped from a failed result, got %+v", result)
	}
}

func TestSubmitTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	if _, err := newTestClient(url, "").Submit(context.Background(), PathDogStatsDSubmit, map[string]any{}); err == nil {
		t.Error("Expected transport error")
	}
}

func TestErrorHintTable(t *testing.T) {
	for _, status := range []int{400, 401, 403, 408, 413, 429, 500, 502, 503} {
		if ErrorHint(status) == "" {
			t.Errorf("Expected hint for HTTP %d", status)
		}
	}
	if ErrorHint(404) != "" {
		t.Error("Expected no hint for HTTP 404")
	}
}

func TestGetAndValidateKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathValidateKey:
			w.Write([]byte(`{"valid":false,"message":"Invalid API key (HTTP 403)"}`))
		case PathLogsPresets:
			w.Write([]byte(`{"api_presets":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")

	status, err := client.ValidateKey(context.Background())
	if err != nil {
		t.Fatalf("ValidateKey failed: %v", err)
	}
	if status.Valid || status.Message != "Invalid API key (HTTP 403)" {
		t.Errorf("Unexpected key status %+v", status)
	}

	var presets map[string]json.RawMessage
	if err := client.Get(context.Background(), PathLogsPresets, &presets); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, ok := presets["api_presets"]; !ok {
		t.Error("Expected api_presets in response")
	}

	if err := client.Get(context.Background(), "/missing", &presets); err == nil {
		t.Error("Expected error for HTTP 404")
	}
}

func TestAgentFileAndSettings(t *testing.T) {
	var cleared bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathAgentFileRecent:
			if got := r.URL.Query().Get("n"); got != "2" {
				t.Errorf("Expected n=2, got %q", got)
			}
			w.Write([]byte(`{"path":"/var/log/forwardog/agent.log","lines":["one\n","two\n"],"count":2}`))
		case PathAgentFileClear:
			if r.Method != http.MethodPost {
				t.Errorf("Expected POST, got %s", r.Method)
			}
			cleared = true
			w.Write([]byte(`{"success":true,"message":"Log file cleared: /var/log/forwardog/agent.log"}`))
		case PathConfig:
			w.Write([]byte(`{"is_configured":true,"masked_api_key":"********abcd","dd_site":"datadoghq.eu","log_path":"/var/log/forwardog/agent.log","dogstatsd_port":8125}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	ctx := context.Background()

	recent, err := client.AgentFileRecent(ctx, 2)
	if err != nil {
		t.Fatalf("AgentFileRecent failed: %v", err)
	}
	if recent.Count != 2 || len(recent.Lines) != 2 || recent.Path != "/var/log/forwardog/agent.log" {
		t.Errorf("Unexpected recent lines %+v", recent)
	}

	result, err := client.ClearAgentFile(ctx)
	if err != nil {
		t.Fatalf("ClearAgentFile failed: %v", err)
	}
	if !cleared || !result.Success {
		t.Errorf("Expected the file to be cleared, got %+v", result)
	}

	settings, err := client.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	want := Settings{Configured: true, MaskedAPIKey: "********abcd", Site: "datadoghq.eu", LogPath: "/var/log/forwardog/agent.log", DogStatsDPort: 8125}
	if !reflect.DeepEqual(settings, want) {
		t.Errorf("Expected %+v, got %+v", want, settings)
	}
}
