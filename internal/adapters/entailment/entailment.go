// Package entailment provides ports.EntailmentModel implementations: an
// HTTP-backed client for a hosted natural-language-inference model, and a
// deterministic keyword-overlap scorer for tests and offline operation.
package entailment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/longregen/cogexec/internal/adapters/circuitbreaker"
	"github.com/longregen/cogexec/internal/adapters/retry"
	"github.com/longregen/cogexec/internal/ports"
)

const RequestTimeout = 15 * time.Second

// Client calls an external NLI-style scoring endpoint that accepts a batch
// of (premise, hypothesis) pairs and returns one score per pair in [0,1].
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	httpClient  *http.Client
	retryConfig retry.BackoffConfig
	breaker     *circuitbreaker.CircuitBreaker
}

func NewClient(baseURL, apiKey, model string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retryConfig: retry.HTTPConfig(),
		breaker:     circuitbreaker.New(5, 30*time.Second),
	}
}

type scoreRequest struct {
	Model string              `json:"model"`
	Pairs []ports.EntailmentPair `json:"pairs"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Score implements ports.EntailmentModel for a single pair.
func (c *Client) Score(ctx context.Context, premise, hypothesis string) (float64, error) {
	scores, err := c.ScoreBatch(ctx, []ports.EntailmentPair{{Premise: premise, Hypothesis: hypothesis}})
	if err != nil {
		return 0, err
	}
	if len(scores) == 0 {
		return 0, fmt.Errorf("no score returned")
	}
	return scores[0], nil
}

// ScoreBatch implements ports.EntailmentModel. pairs order is preserved in
// the returned scores slice.
func (c *Client) ScoreBatch(ctx context.Context, pairs []ports.EntailmentPair) ([]float64, error) {
	if len(pairs) == 0 {
		return []float64{}, nil
	}

	var scores []float64
	err := c.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
		defer cancel()

		req := scoreRequest{Model: c.model, Pairs: pairs}
		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal entailment request: %w", err)
		}

		var respBody []byte
		err = retry.WithBackoffHTTP(ctx, c.retryConfig, func() (int, error) {
			httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/entailment", bytes.NewReader(body))
			if err != nil {
				return 0, fmt.Errorf("failed to create request: %w", err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			if c.apiKey != "" {
				httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				log.Printf("[EntailmentClient] request failed: url=%s, error=%v", c.baseURL, err)
				return 0, fmt.Errorf("failed to send request: %w", err)
			}
			defer resp.Body.Close()

			respBody, err = io.ReadAll(resp.Body)
			if err != nil {
				return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				log.Printf("[EntailmentClient] API error: status=%d, body=%s", resp.StatusCode, string(respBody))
				return resp.StatusCode, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
			}
			return resp.StatusCode, nil
		})
		if err != nil {
			return err
		}

		var parsed scoreResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("failed to decode entailment response: %w", err)
		}
		if len(parsed.Scores) != len(pairs) {
			return fmt.Errorf("expected %d scores, got %d", len(pairs), len(parsed.Scores))
		}
		scores = parsed.Scores
		return nil
	})
	return scores, err
}
