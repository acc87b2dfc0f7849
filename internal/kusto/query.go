package kusto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"kubeagent/internal/faults"
	"kubeagent/internal/metrics"
)

// Scope is the token scope of the Application Insights query API.
const Scope = "https://api.applicationinsights.io/.default"

// DefaultEndpoint is the public Application Insights query API.
const DefaultEndpoint = "https://api.applicationinsights.io"

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is one result table. Cells keep their JSON types.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type queryResponse struct {
	Tables *[]Table `json:"tables"`
}

// Client runs queries against one Application Insights app.
type Client struct {
	HTTPClient *http.Client
	Endpoint   string
	AppID      string
	Credential azcore.TokenCredential
	Metrics    *metrics.Metrics
}

// Query runs query and returns the first result table.
func (c *Client) Query(ctx context.Context, query string) (*Table, error) {
	start := time.Now()
	table, err := c.query(ctx, query)
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Metrics.RecordKustoQuery(result, time.Since(start))
	return table, err
}

func (c *Client) query(ctx context.Context, query string) (*Table, error) {
	tok, err := c.Credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{Scope}})
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u := fmt.Sprintf("%s/v1/apps/%s/query?query=%s",
		strings.TrimSuffix(endpoint, "/"), url.PathEscape(c.AppID), url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, faults.New(faults.TransportFailed, "GET query", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.New(faults.TransportFailed, "read query response", err)
	}
	slog.Debug("query response", "status", resp.StatusCode, "bytes", len(body))
	if resp.StatusCode != http.StatusOK {
		return nil, faults.New(faults.TransportFailed, "GET query",
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	if qr.Tables == nil {
		return nil, errors.New("response has no tables")
	}
	if len(*qr.Tables) == 0 {
		return nil, errors.New("response has an empty tables list")
	}
	return &(*qr.Tables)[0], nil
}
