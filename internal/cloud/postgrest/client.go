// Package postgrest implements cloud.Transport over a PostgREST-style row API
// (/rest/v1/{table}), the shape exposed by hosted Postgres backends.
package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/hyperengineering/gloss/internal/cloud"
)

// Client implements cloud.Transport using resty.
// Safe for concurrent use.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAccessToken sends the signed-in user's token instead of the API key as
// the bearer credential. Row-level security on the server keys off it.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.http.SetAuthToken(token)
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithLogger logs every request and response at debug level.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	h := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")+"/rest/v1").
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "gloss-client/1.0").
		SetHeader("apikey", apiKey).
		SetAuthToken(apiKey).
		SetTimeout(30 * time.Second)

	c := &Client{http: h, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select implements cloud.Transport.
func (c *Client) Select(ctx context.Context, table string, columns []string, filter cloud.Filter) ([]cloud.Row, error) {
	q := filterQuery(filter)
	q.Set("select", strings.Join(columns, ","))

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(q).
		Get("/" + table)
	if err := c.check(resp, err, http.MethodGet, table); err != nil {
		return nil, err
	}

	var rows []cloud.Row
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, &cloud.Error{Kind: cloud.Transient, Table: table, Err: fmt.Errorf("decode rows: %w", err)}
	}
	return rows, nil
}

// Upsert implements cloud.Transport.
func (c *Client) Upsert(ctx context.Context, table string, rows []cloud.Row, conflict []string) error {
	if len(rows) == 0 {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetQueryParam("on_conflict", strings.Join(conflict, ",")).
		SetBody(encodeRows(rows)).
		Post("/" + table)
	return c.check(resp, err, http.MethodPost, table)
}

// Delete implements cloud.Transport.
func (c *Client) Delete(ctx context.Context, table string, filter cloud.Filter) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetQueryParamsFromValues(filterQuery(filter)).
		Delete("/" + table)
	return c.check(resp, err, http.MethodDelete, table)
}

func (c *Client) check(resp *resty.Response, err error, method, table string) error {
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("table", table).Msg("request failed")
		return &cloud.Error{Kind: cloud.Transient, Table: table, Err: err}
	}

	c.log.Debug().
		Str("method", method).
		Str("url", resp.Request.URL).
		Int("status", resp.StatusCode()).
		Str("body", truncateForLog(resp.String(), 2000)).
		Msg("response")

	if resp.IsSuccess() {
		return nil
	}
	return classify(table, resp.StatusCode(), resp.Body())
}

// apiError is the error body returned by the row API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

var (
	columnPattern      = regexp.MustCompile(`column (?:"?[\w]+"?\.)?"?(\w+)"? does not exist`)
	cacheColumnPattern = regexp.MustCompile(`Could not find the '(\w+)' column`)
)

// classify maps an error response onto the cloud error model. Missing tables,
// missing columns and unusable conflict targets are schema mismatches.
func classify(table string, status int, body []byte) *cloud.Error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	msg := ae.Message
	if msg == "" {
		msg = truncateForLog(string(body), 200)
	}
	err := fmt.Errorf("HTTP %d: %s %s", status, ae.Code, msg)

	switch ae.Code {
	case "42703", "PGRST204":
		return &cloud.Error{Kind: cloud.SchemaMismatch, Table: table, Column: missingColumn(ae.Message), Err: err}
	case "42P01", "PGRST205", "42P10", "PGRST100":
		return &cloud.Error{Kind: cloud.SchemaMismatch, Table: table, Err: err}
	case "PGRST116":
		return &cloud.Error{Kind: cloud.NotFound, Table: table, Err: err}
	}
	if status == http.StatusNotFound && ae.Code == "" {
		return &cloud.Error{Kind: cloud.SchemaMismatch, Table: table, Err: err}
	}
	return &cloud.Error{Kind: cloud.Transient, Table: table, Err: err}
}

func missingColumn(msg string) string {
	if m := columnPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := cacheColumnPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

func filterQuery(f cloud.Filter) url.Values {
	q := url.Values{}
	for col, v := range f.Eq {
		q.Add(col, "eq."+formatValue(v))
	}
	for col, vs := range f.In {
		quoted := make([]string, len(vs))
		for i, v := range vs {
			quoted[i] = `"` + strings.ReplaceAll(formatValue(v), `"`, `\"`) + `"`
		}
		q.Add(col, "in.("+strings.Join(quoted, ",")+")")
	}
	return q
}

func formatValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case nil:
		return "null"
	default:
		return fmt.Sprint(x)
	}
}

func encodeRows(rows []cloud.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}
