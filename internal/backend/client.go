// Package backend talks to the Submission Backend over HTTP. Every call is a
// single attempt; the operator decides whether to resubmit.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oicur0t/forwardog/pkg/models"
	"go.uber.org/zap"
)

// Backend endpoints
const (
	PathMetricsSubmitJSON  = "/api/metrics/api/submit-json"
	PathDogStatsDSubmit    = "/api/metrics/dogstatsd/submit"
	PathDogStatsDSubmitRaw = "/api/metrics/dogstatsd/submit-raw"
	PathDogStatsDExecute   = "/api/metrics/dogstatsd/execute"
	PathDogStatsDExamples  = "/api/metrics/dogstatsd/examples"
	PathMetricsPresets     = "/api/metrics/presets"
	PathLogsSubmitJSON     = "/api/logs/api/submit-json"
	PathAgentFileSubmit    = "/api/logs/agent-file/submit"
	PathAgentFileRecent    = "/api/logs/agent-file/recent"
	PathAgentFileClear     = "/api/logs/agent-file/clear"
	PathLogsPresets        = "/api/logs/presets"
	PathValidateKey        = "/api/validate-key"
	PathConfig             = "/api/config"
)

// APIKeyHeader carries backend.api_key when configured
const APIKeyHeader = "DD-API-KEY"

// Responses larger than this are truncated before decoding
const maxResponseBytes = 5 << 20

var errorHints = map[int]string{
	http.StatusBadRequest:            "Invalid payload format. Check metric/log structure and required fields.",
	http.StatusUnauthorized:          "Invalid API key. Verify the API key configured on the backend.",
	http.StatusForbidden:             "API key doesn't have permission for this operation.",
	http.StatusRequestTimeout:        "Request timeout. Check network connectivity.",
	http.StatusRequestEntityTooLarge: "Payload too large. Max 5MB per request, 1MB per log entry.",
	http.StatusTooManyRequests:       "Rate limited. Too many requests. Wait before retrying.",
	http.StatusInternalServerError:   "Server error. Try again later.",
	http.StatusBadGateway:            "Bad gateway. The intake service is temporarily unavailable.",
	http.StatusServiceUnavailable:    "Service unavailable. The intake service is under maintenance.",
}

// ErrorHint returns the operator hint for an HTTP status, or ""
func ErrorHint(status int) string {
	return errorHints[status]
}

// KeyStatus is the backend's answer to a credential check
type KeyStatus struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// RecentLines is the tail of the agent log file the backend writes to
type RecentLines struct {
	Path  string   `json:"path"`
	Lines []string `json:"lines"`
	Count int      `json:"count"`
}

// Settings summarizes the backend's configuration. The API key is masked.
type Settings struct {
	Configured    bool     `json:"is_configured"`
	MaskedAPIKey  string   `json:"masked_api_key"`
	Site          string   `json:"dd_site"`
	AgentHost     string   `json:"dd_agent_host,omitempty"`
	DogStatsDPort int      `json:"dogstatsd_port,omitempty"`
	LogPath       string   `json:"log_path"`
	DefaultTags   []string `json:"default_tags,omitempty"`
}

// Client sends submissions to the backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client. tlsConfig may be nil.
func NewClient(baseURL, apiKey string, tlsConfig *tls.Config, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     tlsConfig,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: timeout,
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Submit posts body as JSON to path. A transport failure is returned as an
// error; any HTTP response is decoded into a SubmissionResult.
func (c *Client) Submit(ctx context.Context, path string, body any) (models.SubmissionResult, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return models.SubmissionResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(jsonData))
	if err != nil {
		return models.SubmissionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Request failed", zap.String("path", path), zap.Error(err))
		return models.SubmissionResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.SubmissionResult{}, fmt.Errorf("failed to read response: %w", err)
	}
	latency := time.Since(start)

	result := decodeResult(resp.StatusCode, data, latency)

	c.logger.Debug("Submission sent",
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode),
		zap.Bool("success", result.Success),
		zap.Duration("latency", latency))

	return result, nil
}

// Get fetches path and decodes the JSON response into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned HTTP %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ValidateKey asks the backend whether its configured API key is accepted
func (c *Client) ValidateKey(ctx context.Context) (KeyStatus, error) {
	var status KeyStatus
	if err := c.Get(ctx, PathValidateKey, &status); err != nil {
		return KeyStatus{}, err
	}
	return status, nil
}

// AgentFileRecent returns the last n lines of the agent log file. n <= 0
// leaves the count to the backend.
func (c *Client) AgentFileRecent(ctx context.Context, n int) (RecentLines, error) {
	path := PathAgentFileRecent
	if n > 0 {
		path += "?n=" + strconv.Itoa(n)
	}

	var recent RecentLines
	if err := c.Get(ctx, path, &recent); err != nil {
		return RecentLines{}, err
	}
	return recent, nil
}

// ClearAgentFile truncates the agent log file on the backend
func (c *Client) ClearAgentFile(ctx context.Context) (models.SubmissionResult, error) {
	return c.Submit(ctx, PathAgentFileClear, struct{}{})
}

// Settings fetches the backend's configuration summary
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var settings Settings
	if err := c.Get(ctx, PathConfig, &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	return req, nil
}

// decodeResult interprets a backend response. Bodies carrying a "success"
// field are taken as results; anything else becomes a failed result.
func decodeResult(status int, data []byte, latency time.Duration) models.SubmissionResult {
	latencyMS := float64(latency.Microseconds()) / 1000

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil {
		if _, ok := fields["success"]; ok {
			var result models.SubmissionResult
			if err := json.Unmarshal(data, &result); err == nil {
				if result.LatencyMS == 0 {
					result.LatencyMS = latencyMS
				}
				if !result.Success && result.StatusCode == 0 {
					result.StatusCode = status
				}
				if !result.Success && result.ErrorHint == "" {
					result.ErrorHint = ErrorHint(result.StatusCode)
				}
				if !result.Success {
					result.Warning = false
					result.WarningMessage = ""
				}
				return result
			}
		}
	}

	message := fmt.Sprintf("Backend returned HTTP %d", status)
	if detail := responseDetail(fields); detail != "" {
		message += ": " + detail
	}

	return models.SubmissionResult{
		Success:      false,
		Message:      message,
		StatusCode:   status,
		LatencyMS:    latencyMS,
		ResponseBody: rawBody(data),
		ErrorHint:    ErrorHint(status),
	}
}

// responseDetail extracts a human-readable error from common error shapes
func responseDetail(fields map[string]json.RawMessage) string {
	for _, key := range []string{"detail", "message", "error"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// rawBody keeps JSON bodies as-is and wraps anything else in a JSON string
func rawBody(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(string(trimmed))
	return encoded
}
