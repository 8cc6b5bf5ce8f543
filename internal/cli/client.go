package cli

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lueurxax/insights-engine/internal/api"
	"github.com/lueurxax/insights-engine/internal/report"
)

const apiPrefix = "/api/v1"

// Client talks to a running insights server.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL + apiPrefix).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// Generate requests a report (re)generation.
func (c *Client) Generate(ctx context.Context, subject, category string, body api.GenerateRequest) (*api.GenerateResponse, error) {
	var out api.GenerateResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&api.ErrorResponse{}).
		Post(fmt.Sprintf("/subjects/%s/reports/%s", url.PathEscape(subject), url.PathEscape(category)))

	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}

	return &out, nil
}

// Report fetches a stored report.
func (c *Client) Report(ctx context.Context, subject, category, investorKey string) (*report.ReportView, error) {
	var out report.ReportView

	req := c.http.R().SetContext(ctx).SetResult(&out).SetError(&api.ErrorResponse{})
	if investorKey != "" {
		req.SetQueryParam("investorKey", investorKey)
	}

	resp, err := req.Get(fmt.Sprintf("/subjects/%s/reports/%s", url.PathEscape(subject), url.PathEscape(category)))
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}

	return &out, nil
}

// Scores fetches the subject's scores.
func (c *Client) Scores(ctx context.Context, subject string) (*report.ScoresView, error) {
	var out report.ScoresView

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&api.ErrorResponse{}).
		Get(fmt.Sprintf("/subjects/%s/scores", url.PathEscape(subject)))

	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}

	return &out, nil
}

// Invocation fetches an invocation record.
func (c *Client) Invocation(ctx context.Context, id string) (*api.InvocationResponse, error) {
	var out api.InvocationResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&api.ErrorResponse{}).
		Get("/invocations/" + url.PathEscape(id))

	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}

	return &out, nil
}

// APIError is a failed API response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
	}

	return fmt.Sprintf("api returned %d (%s): %s", e.Status, e.Code, e.Message)
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode(), Message: resp.String()}

	if envelope, ok := resp.Error().(*api.ErrorResponse); ok && envelope.Code != "" {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
	}

	return apiErr
}
