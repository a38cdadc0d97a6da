// Package jira is a small Jira Cloud REST v2 client covering what the bot
// needs: issue creation and attachment upload.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
)

// Client talks to one Jira site with basic (email + API token) auth.
type Client struct {
	baseURL     string
	email       string
	apiToken    string
	epicField   string
	priorityMap map[string]string
	httpClient  *http.Client
	maxRetries  uint64
	retryBase   time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEpicField sets the custom field that links an issue to its epic.
func WithEpicField(field string) Option {
	return func(c *Client) { c.epicField = field }
}

// WithPriorityMap maps display priorities to the site's priority names.
// Unmapped priorities are sent as-is.
func WithPriorityMap(m map[string]string) Option {
	return func(c *Client) { c.priorityMap = m }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetry sets how often a rejected-before-processing request is retried.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = uint64(maxRetries)
		c.retryBase = base
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the site at baseURL.
func New(baseURL, email, apiToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		epicField:  "customfield_10014",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 2,
		retryBase:  time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a non-success answer from Jira.
type Error struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("jira: %s: status %d: %s", e.Op, e.StatusCode, clip(e.Body, 200))
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// retryable reports whether Jira refused the request without acting on it.
func (e *Error) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// IssueInput holds the fields of a new issue.
type IssueInput struct {
	Project     string
	Summary     string
	Description string
	IssueType   string
	Priority    string
	Labels      []string
	Epic        string
	// SourceLink is appended to the description as a link back to the chat.
	SourceLink string
}

// Issue identifies a created issue.
type Issue struct {
	Key string `json:"key"`
	ID  string `json:"id"`
	URL string `json:"url"`
}

// FullDescription returns the description with the source link footer appended.
func (in IssueInput) FullDescription() string {
	if in.SourceLink == "" {
		return in.Description
	}
	return in.Description + "\n\n----\n[View Slack conversation|" + in.SourceLink + "]"
}

// CreateIssue creates an issue and returns its key and browse URL.
func (c *Client) CreateIssue(ctx context.Context, in IssueInput) (*Issue, error) {
	fields := map[string]any{
		"project":     map[string]string{"key": in.Project},
		"summary":     in.Summary,
		"description": in.FullDescription(),
		"issuetype":   map[string]string{"name": in.IssueType},
	}
	if in.Priority != "" {
		fields["priority"] = map[string]string{"name": c.MapPriority(in.Priority)}
	}
	if len(in.Labels) > 0 {
		fields["labels"] = in.Labels
	}
	if in.Epic != "" && c.epicField != "" {
		fields[c.epicField] = in.Epic
	}

	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("jira: marshal issue: %w", err)
	}

	var issue Issue
	err = c.do(ctx, "create issue", http.StatusCreated, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/api/2/issue", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &issue)
	if err != nil {
		return nil, err
	}
	issue.URL = c.BrowseURL(issue.Key)
	c.logger.Info("jira issue created", "key", issue.Key, "project", in.Project)
	return &issue, nil
}

// AddAttachment uploads the file at path to an issue under the given name.
func (c *Client) AddAttachment(ctx context.Context, issueKey, name, path string) error {
	if name == "" {
		name = filepath.Base(path)
	}
	return c.do(ctx, "add attachment", http.StatusOK, func() (*http.Request, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			defer f.Close()
			part, err := mw.CreateFormFile("file", name)
			if err == nil {
				_, err = io.Copy(part, f)
			}
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/rest/api/2/issue/%s/attachments", c.baseURL, issueKey), pr)
		if err != nil {
			pr.Close()
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-Atlassian-Token", "no-check")
		return req, nil
	}, nil)
}

// User is the authenticated Jira account.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Myself returns the account the client authenticates as. Used to check
// credentials at startup.
func (c *Client) Myself(ctx context.Context) (*User, error) {
	var u User
	err := c.do(ctx, "myself", http.StatusOK, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/api/2/myself", nil)
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// BrowseURL returns the web URL of an issue.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// MapPriority translates a display priority through the priority map.
func (c *Client) MapPriority(p string) string {
	if mapped, ok := c.priorityMap[p]; ok {
		return mapped
	}
	return p
}

// do sends the request built by newReq, retrying when Jira answers 429/503,
// and decodes a JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, op string, want int, newReq func() (*http.Request, error), out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	attempt := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("jira: %s: build request: %w", op, err))
		}
		c.setAuthHeader(req)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("jira: %s: %w", op, err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("jira: %s: read response: %w", op, err))
		}
		if resp.StatusCode != want {
			jerr := &Error{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
			if jerr.retryable() {
				return jerr
			}
			return backoff.Permanent(jerr)
		}
		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return backoff.Permanent(fmt.Errorf("jira: %s: decode response: %w", op, err))
			}
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("jira request throttled, retrying", "op", op, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(attempt, policy, notify)
}

func (c *Client) setAuthHeader(req *http.Request) {
	auth := base64.StdEncoding.EncodeToString([]byte(c.email + ":" + c.apiToken))
	req.Header.Set("Authorization", "Basic "+auth)
}
