package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kcajmagic/COSC-NACHOS/pkg/model"
)

// Client is an HTTP client for the trace API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a trace API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// Get performs a GET request and returns the parsed envelope.
func (c *Client) Get(path string) (*apiResponse, error) {
	u := c.BaseURL + path
	c.Logger.Debug("HTTP request", "method", "GET", "url", u)

	resp, err := c.HTTPClient.Get(u)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "body", string(respBody))

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}

	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}

	return &apiResp, nil
}

// ListRuns fetches one page of runs.
func (c *Client) ListRuns(opts model.ListOptions) ([]*model.Run, int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	q.Set("offset", strconv.Itoa(opts.Offset))
	if opts.Scenario != "" {
		q.Set("scenario", opts.Scenario)
	}
	if opts.State != "" {
		q.Set("state", string(opts.State))
	}

	resp, err := c.Get("/api/v1/runs?" + q.Encode())
	if err != nil {
		return nil, 0, err
	}
	var runs []*model.Run
	if err := json.Unmarshal(resp.Data, &runs); err != nil {
		return nil, 0, fmt.Errorf("parse runs: %w", err)
	}
	total := len(runs)
	if resp.Pagination != nil {
		total = resp.Pagination.Total
	}
	return runs, total, nil
}

// GetRun fetches a run, returning nil if it does not exist.
func (c *Client) GetRun(id string) (*model.Run, error) {
	resp, err := c.Get("/api/v1/runs/" + url.PathEscape(id))
	if apiErr, ok := err.(*model.APIError); ok && apiErr.Code == model.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var run model.Run
	if err := json.Unmarshal(resp.Data, &run); err != nil {
		return nil, fmt.Errorf("parse run: %w", err)
	}
	return &run, nil
}

// ListEvents fetches the thread events of a run.
func (c *Client) ListEvents(id string) ([]model.ThreadEvent, error) {
	resp, err := c.Get("/api/v1/runs/" + url.PathEscape(id) + "/events")
	if err != nil {
		return nil, err
	}
	var events []model.ThreadEvent
	if err := json.Unmarshal(resp.Data, &events); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}
	return events, nil
}
