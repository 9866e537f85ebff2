package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Client is a JSON-RPC 2.0 client over HTTP with retry and timeout support.
// It talks to Solana RPC nodes and to the ledger gateway.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	maxRetries   int
	retryBackoff time.Duration
	logger       *logrus.Logger
	nextID       atomic.Uint64
}

// ClientConfig holds configuration for the RPC client
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int // 0 sends each call exactly once
	RetryBackoff time.Duration
	Logger       *logrus.Logger
}

// errTransient marks failures worth retrying
var errTransient = errors.New("transient rpc failure")

// NewClient creates a new RPC client with retry support
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:      cfg.BaseURL,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		logger:       cfg.Logger,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call makes a JSON-RPC call and decodes the result field into result.
// Transport failures, 429 and 5xx responses are retried with exponential
// backoff; an error object in the response is returned as *RPCError and
// never retried.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"method":  method,
			}).Debug("retrying RPC call")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2 // exponential backoff
		}

		resp, err := c.doRequest(ctx, data)
		if err != nil {
			lastErr = err
			if !errors.Is(err, errTransient) {
				return err
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal(resp, &env); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if env.Error != nil {
			return env.Error
		}
		if result == nil || len(env.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: request failed: %v", errTransient, err)
	}
	defer resp.Body.Close()

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: rate limited (429)", errTransient)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status code %d", errTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// GetSignaturesForAddress fetches recent transaction signatures touching address
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, opts map[string]any) ([]SignatureInfo, error) {
	var out []SignatureInfo
	if err := c.Call(ctx, "getSignaturesForAddress", []any{address, opts}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransaction fetches full transaction details; a nil result means the
// node does not know the signature (yet)
func (c *Client) GetTransaction(ctx context.Context, signature string, commitment string) (*TransactionResult, error) {
	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"commitment":                     commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}

	var out *TransactionResult
	if err := c.Call(ctx, "getTransaction", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}
