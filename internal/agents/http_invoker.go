package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/insightgrid-ai/orchestrator/internal/models"
)

const defaultLLMServiceURL = "http://llm-service:8000"

// HTTPInvokerConfig tunes the LLM service client.
type HTTPInvokerConfig struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps the call rate to the LLM service; zero
	// disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// HTTPInvoker posts agent work orders to the LLM service and returns its
// prose response. Failures are typed returns; the executor turns them into
// failed AgentResults.
type HTTPInvoker struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPInvoker builds the production invoker. BaseURL falls back to
// LLM_SERVICE_URL, then to the in-cluster default.
func NewHTTPInvoker(cfg HTTPInvokerConfig, logger *zap.Logger) *HTTPInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("LLM_SERVICE_URL")
	}
	if baseURL == "" {
		baseURL = defaultLLMServiceURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPInvoker{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: limiter,
		logger:  logger,
	}
}

type agentRequest struct {
	Query          string                 `json:"query"`
	AgentID        string                 `json:"agent_id"`
	Directives     []string               `json:"directives"`
	Context        map[string]interface{} `json:"context,omitempty"`
	FailedUpstream []string               `json:"failed_upstream,omitempty"`
}

type agentResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Invoke posts one work order to /agent/query and returns the response
// text. The rate limiter, when configured, throttles before the request is
// built so a cancelled wait costs nothing.
func (h *HTTPInvoker) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqBody := agentRequest{
		Query:      inv.Query,
		AgentID:    string(inv.Spec.ID),
		Directives: inv.Spec.Directives,
		Context:    buildContext(inv),
	}
	for _, id := range inv.FailedUpstream {
		reqBody.FailedUpstream = append(reqBody.FailedUpstream, string(id))
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := h.baseURL + "/agent/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-ID", string(inv.Spec.ID))
	if inv.RunID != "" {
		req.Header.Set("X-Run-ID", inv.RunID)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d from LLM service", resp.StatusCode)
	}

	var out agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("LLM service reported failure: %s", out.Error)
	}

	h.logger.Debug("Agent invocation completed",
		zap.String("agent_id", string(inv.Spec.ID)),
		zap.Duration("elapsed", time.Since(start)))
	return out.Response, nil
}

// buildContext assembles the upstream view and data summaries into the
// request context map.
func buildContext(inv Invocation) map[string]interface{} {
	ctx := make(map[string]interface{})
	if len(inv.Upstream) > 0 {
		upstream := make(map[string]string, len(inv.Upstream))
		for _, res := range inv.Upstream {
			if res.Status == models.StatusCompleted {
				upstream[string(res.AgentID)] = res.Output
			}
		}
		ctx["upstream"] = upstream
	}
	if len(inv.Summaries) > 0 {
		ctx["data_summaries"] = inv.Summaries
	}
	if len(ctx) == 0 {
		return nil
	}
	return ctx
}
