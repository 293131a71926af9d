// Package client talks to the ladder HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds each request unless overridden.
const DefaultTimeout = 10 * time.Second

// Student is a roster entry with its tier name.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

// TransitionResult is the response to an accepted transition.
type TransitionResult struct {
	Section      string `json:"section"`
	StudentID    string `json:"student_id"`
	Name         string `json:"name"`
	From         string `json:"from"`
	To           string `json:"to"`
	Spotlight    bool   `json:"spotlight"`
	NewSpotlight bool   `json:"new_spotlight"`
}

// ReportRow is one line of a section report.
type ReportRow struct {
	RN        int    `json:"rn"`
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Level     string `json:"level"`
}

// Report is a section progress report.
type Report struct {
	Section string      `json:"section"`
	Teacher string      `json:"teacher"`
	Subject string      `json:"subject"`
	Date    string      `json:"date"`
	Rows    []ReportRow `json:"rows"`
}

// SpotlightEntry is one gold event on the weekly poster.
type SpotlightEntry struct {
	WeekKey     string `json:"weekKey"`
	Timestamp   int64  `json:"timestamp"`
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Section     string `json:"section"`
}

// Poster is the weekly spotlight listing.
type Poster struct {
	WeekKey string           `json:"week"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Entries []SpotlightEntry `json:"entries"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status   int
	Code     string `json:"code"`
	Message  string `json:"message"`
	Expected string `json:"expected"`
	Terminal bool   `json:"terminal"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// IsRejected reports whether err is a forward-only rejection.
func IsRejected(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) && ae.Code == "transition_rejected" {
		return ae, true
	}
	return nil, false
}

// Client wraps http.Client with the API base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Sections lists section names.
func (c *Client) Sections(ctx context.Context) ([]string, error) {
	var out struct {
		Sections []string `json:"sections"`
	}
	err := c.do(ctx, http.MethodGet, "/sections", nil, &out)
	return out.Sections, err
}

// Students lists a section with tiers.
func (c *Client) Students(ctx context.Context, section string) ([]Student, error) {
	var out struct {
		Students []Student `json:"students"`
	}
	err := c.do(ctx, http.MethodGet, "/sections/"+url.PathEscape(section)+"/students", nil, &out)
	return out.Students, err
}

// Advance requests a transition.
func (c *Client) Advance(ctx context.Context, section, studentID, tier string) (TransitionResult, error) {
	var out TransitionResult
	body := map[string]string{"student_id": studentID, "tier": tier}
	err := c.do(ctx, http.MethodPost, "/sections/"+url.PathEscape(section)+"/transitions", body, &out)
	return out, err
}

// Reset clears a section.
func (c *Client) Reset(ctx context.Context, section string) error {
	return c.do(ctx, http.MethodPost, "/sections/"+url.PathEscape(section)+"/reset", nil, nil)
}

// Report fetches a section report.
func (c *Client) Report(ctx context.Context, section string) (Report, error) {
	var out Report
	err := c.do(ctx, http.MethodGet, "/sections/"+url.PathEscape(section)+"/report", nil, &out)
	return out, err
}

// ReportCSV downloads a section report as CSV and returns the server's file
// name.
func (c *Client) ReportCSV(ctx context.Context, section string, w io.Writer) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/sections/"+url.PathEscape(section)+"/report?format=csv", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	name := "report.csv"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, nil
}

// Spotlight fetches the poster for the week containing at; zero at means now.
func (c *Client) Spotlight(ctx context.Context, at time.Time) (Poster, error) {
	path := "/spotlight"
	if !at.IsZero() {
		path += "?at=" + url.QueryEscape(at.Format(time.RFC3339))
	}
	var out Poster
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Purge removes a week's spotlight entries.
func (c *Client) Purge(ctx context.Context, week string) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodDelete, "/spotlight/"+url.PathEscape(week), nil, &out)
	return out.Removed, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into *APIError.
// The caller closes the body on success.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(raw, apiErr)
		return nil, apiErr
	}
	return resp, nil
}
