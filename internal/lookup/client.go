// Package lookup calls the Site Review batch lookup API.
package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ppiankov/zsr/internal/model"
	"github.com/ppiankov/zsr/internal/util"
	"github.com/ppiankov/zsr/internal/worker"
	"go.uber.org/zap"
)

// ErrMalformedResponse is returned when the API answers with a payload
// that does not have the expected shape
var ErrMalformedResponse = errors.New("malformed lookup response")

// notAvailable is the threat name Site Review uses when it has no data
const notAvailable = "Not Available"

const defaultMaxBodyBytes = 10_000_000

// Client looks up batches of URLs with Site Review
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	logger     *zap.Logger
}

// NewClient creates a new Client with the given configuration
func NewClient(lookupCfg model.LookupConfig, httpCfg model.HTTPConfig, logger *zap.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy)

	maxBytes := lookupCfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   lookupCfg.Timeout,
			Transport: transport,
		},
		endpoint:  lookupCfg.Endpoint,
		userAgent: httpCfg.UserAgent,
		maxBytes:  maxBytes,
		limiter:   worker.NewLimiter(lookupCfg.RequestsPerSecond, lookupCfg.Burst),
		logger:    logger,
	}
}

type lookupRequest struct {
	URLs []string `json:"urls"`
}

type lookupEnvelope struct {
	ResponseData json.RawMessage `json:"responseData"`
}

type lookupData struct {
	RespMap map[string]lookupEntry `json:"respMap"`
}

type lookupEntry struct {
	ThreatName *string  `json:"threatName"`
	Categories []string `json:"zurldblist"`
}

// Lookup submits one batch of URLs and returns the verdict for every key
// in the response. Keys are the ones Site Review returns.
func (c *Client) Lookup(ctx context.Context, urls []string) (model.Results, error) {
	body, err := json.Marshal(lookupRequest{URLs: urls})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if err := c.limiter.Wait(ctx, c.endpoint); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Info("Calling Site Review", zap.Int("urls", len(urls)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	results, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Call results are processed", zap.Int("urls", len(results)))

	return results, nil
}

// parseResponse decodes the envelope. responseData is normally a JSON
// document encoded as a string; an embedded object is accepted as well.
func parseResponse(raw []byte) (model.Results, error) {
	var env lookupEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(env.ResponseData) == 0 || string(env.ResponseData) == "null" {
		return nil, fmt.Errorf("%w: missing responseData", ErrMalformedResponse)
	}

	inner := []byte(env.ResponseData)
	if inner[0] == '"' {
		var encoded string
		if err := json.Unmarshal(inner, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		inner = []byte(encoded)
	}

	var data lookupData
	if err := json.Unmarshal(inner, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if data.RespMap == nil {
		return nil, fmt.Errorf("%w: missing respMap", ErrMalformedResponse)
	}

	results := make(model.Results, len(data.RespMap))
	for key, entry := range data.RespMap {
		results[key] = entry.verdict()
	}

	return results, nil
}

func (e lookupEntry) verdict() model.Verdict {
	threat := ""
	if e.ThreatName != nil && *e.ThreatName != notAvailable {
		threat = *e.ThreatName
	}

	categories := e.Categories
	if categories == nil {
		categories = []string{}
	}

	return model.Verdict{Threat: threat, Categories: categories}
}
