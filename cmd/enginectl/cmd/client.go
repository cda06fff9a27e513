package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leafsii/collateral-engine/internal/api"
)

// APIError is a non-2xx response from the engine API.
type APIError struct {
	Status int
	api.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("%s (%s, HTTP %d): %s", e.Code, e.Class, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Client calls the engine HTTP API on behalf of one address.
type Client struct {
	base   string
	from   string
	client *http.Client
}

func NewClient(endpoint, from string) *Client {
	return &Client{
		base:   strings.TrimRight(endpoint, "/"),
		from:   from,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.from == "" {
		return fmt.Errorf("--from is required for %s", path)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.from != "" {
		req.Header.Set(api.HeaderUserAddress, c.from)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.ErrorResponse); err != nil {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Assets(ctx context.Context) ([]api.AssetDTO, error) {
	var out []api.AssetDTO
	return out, c.get(ctx, "/v1/assets", &out)
}

func (c *Client) Constants(ctx context.Context) (api.ConstantsDTO, error) {
	var out api.ConstantsDTO
	return out, c.get(ctx, "/v1/protocol/constants", &out)
}

func (c *Client) Account(ctx context.Context, user string) (api.AccountDTO, error) {
	var out api.AccountDTO
	return out, c.get(ctx, "/v1/users/"+url.PathEscape(user)+"/account", &out)
}

func (c *Client) Health(ctx context.Context, user string) (api.HealthDTO, error) {
	var out api.HealthDTO
	return out, c.get(ctx, "/v1/users/"+url.PathEscape(user)+"/health", &out)
}

func (c *Client) Approve(ctx context.Context, req api.ApproveRequest) error {
	return c.post(ctx, "/v1/tokens/approve", req, nil)
}

func (c *Client) Deposit(ctx context.Context, req api.DepositRequest) (api.OperationResponse, error) {
	var out api.OperationResponse
	return out, c.post(ctx, "/v1/positions/deposit", req, &out)
}

func (c *Client) Mint(ctx context.Context, req api.MintRequest) (api.OperationResponse, error) {
	var out api.OperationResponse
	return out, c.post(ctx, "/v1/positions/mint", req, &out)
}

func (c *Client) Redeem(ctx context.Context, req api.RedeemRequest) (api.OperationResponse, error) {
	var out api.OperationResponse
	return out, c.post(ctx, "/v1/positions/redeem", req, &out)
}

func (c *Client) Burn(ctx context.Context, req api.BurnRequest) (api.OperationResponse, error) {
	var out api.OperationResponse
	return out, c.post(ctx, "/v1/positions/burn", req, &out)
}

func (c *Client) Liquidate(ctx context.Context, req api.LiquidateRequest) (api.LiquidationDTO, error) {
	var out api.LiquidationDTO
	return out, c.post(ctx, "/v1/positions/liquidate", req, &out)
}
