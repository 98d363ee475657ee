package square

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/Adda-Baaj/square-connect/pkg/httpclient"
)

const (
	Host           = "connect.squareup.com"
	APIVersion     = "v1"
	DefaultBaseURL = "https://" + Host
)

// Client issues authenticated requests against the Square Connect API.
// A Client is immutable after construction and safe for concurrent use.
type Client struct {
	accessToken string
	baseURL     string
	http        httpclient.Client
	log         Logger
	fault       func(error)
}

// New creates a client from a bare access token.
func New(accessToken string) *Client {
	return NewWithOptions(Options{AccessToken: accessToken})
}

// NewWithOptions creates a client from a configuration record. It never fails:
// a bad token only shows up as an error from the API.
func NewWithOptions(opts Options) *Client {
	c := &Client{
		accessToken: opts.AccessToken,
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		http:        opts.HTTPClient,
		log:         opts.Logger,
		fault:       opts.OnFault,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = httpclient.NewRestyClient(opts.Timeout)
	}
	if c.log == nil {
		c.log = defaultLogger()
	}
	if c.fault == nil {
		c.fault = func(err error) { panic(err) }
	}
	return c
}

// call is the per-request descriptor assembled from path and options.
type call struct {
	method    string
	methodSet bool
	params    map[string]any
	paramsSet bool
	callback  Callback

	path    string
	request httpclient.Request
}

// API dispatches one request and returns immediately. The outcome is delivered
// to the WithCallback continuation from another goroutine. API returns false
// only when the arguments are rejected before any I/O; in that case the error
// is delivered synchronously. Errors with no callback to receive them are
// raised through Options.OnFault.
//
// path is relative to /v1 and must not carry a scheme ("://"), a query ("?"),
// a fragment ("#"), whitespace or control characters; such paths are rejected
// as ErrInvalidArgument. Pass query values through WithParams instead.
func (c *Client) API(ctx context.Context, path string, opts ...RequestOption) bool {
	cl, err := c.prepare(path, opts)
	if err != nil {
		c.deliver(cl, nil, err)
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.log.DebugObj("square api request dispatched", "square_request", cl.summary())
	go func() {
		resp, err := c.execute(ctx, cl)
		c.deliver(cl, resp, err)
	}()
	return true
}

// Do performs one request synchronously. For 4xx/5xx responses both the
// envelope and an *Error are returned. path follows the same rules as API.
func (c *Client) Do(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	cl, err := c.prepare(path, opts)
	if err == nil && cl.callback != nil {
		err = invalidArgument("Do does not take a callback; use API")
	}
	if err != nil {
		c.report(cl, err)
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := c.execute(ctx, cl)
	if err != nil {
		c.report(cl, err)
	}
	return resp, err
}

// prepare validates arguments and assembles the outbound request. Every option
// is applied even after a failure so a callback given later still receives the error.
func (c *Client) prepare(path string, opts []RequestOption) (*call, error) {
	cl := &call{path: path}

	var firstErr error
	for i, opt := range opts {
		if opt == nil {
			if firstErr == nil {
				firstErr = invalidArgument("argument %d is not a request option", i+1)
			}
			continue
		}
		if err := opt(cl); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return cl, firstErr
	}

	if err := validatePath(path); err != nil {
		return cl, err
	}
	method, err := normalizeMethod(cl.method)
	if err != nil {
		return cl, err
	}
	cl.method = method

	req := httpclient.Request{
		Method: method,
		URL:    c.endpoint(path),
		Headers: map[string]string{
			"Authorization": "Bearer " + c.accessToken,
			"Accept":        "application/json",
		},
	}
	if cl.params != nil {
		if method == http.MethodGet {
			req.Query = encodeQuery(cl.params)
		} else {
			body, err := json.Marshal(cl.params)
			if err != nil {
				return cl, invalidArgument("params are not JSON serializable: %v", err)
			}
			req.Body = body
		}
	}
	cl.request = req
	return cl, nil
}

func (c *Client) execute(ctx context.Context, cl *call) (*Response, error) {
	resp, err := c.http.Do(ctx, cl.request)
	if err != nil {
		return nil, transportError(err)
	}

	envelope := newResponse(resp)
	if envelope.StatusCode >= 400 && envelope.StatusCode <= 599 {
		if envelope.Data == nil {
			envelope.Data = map[string]any{}
		}
		return envelope, applicationError(envelope)
	}
	return envelope, nil
}

// deliver logs err, then hands the outcome to the callback or raises it as a fault.
func (c *Client) deliver(cl *call, resp *Response, err error) {
	if err != nil {
		c.report(cl, err)
	}
	if cl != nil && cl.callback != nil {
		cl.callback(resp, err)
		return
	}
	if err != nil {
		c.fault(err)
	}
}

func (c *Client) report(cl *call, err error) {
	fields := map[string]any{"error": err.Error()}
	if cl != nil {
		for k, v := range cl.summary() {
			fields[k] = v
		}
	}
	var e *Error
	if errors.As(err, &e) {
		fields["kind"] = e.Kind.String()
		if e.Kind == KindApplication {
			fields["status_code"] = e.StatusCode
			fields["type"] = e.Type
		}
	}
	c.log.ErrorObj("square api request failed", "square_error", fields)
}

// endpoint joins base URL, API version and path, adding the leading slash if missing.
func (c *Client) endpoint(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + "/" + APIVersion + path
}

func (cl *call) summary() map[string]any {
	return map[string]any{
		"method": cl.method,
		"path":   cl.path,
	}
}

func validatePath(path string) error {
	if strings.Contains(path, "://") || strings.ContainsAny(path, "?#") {
		return invalidArgument("invalid path passed to API(): %q", path)
	}
	for _, r := range path {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return invalidArgument("invalid path passed to API(): %q", path)
		}
	}
	return nil
}

func normalizeMethod(method string) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet, nil
	}
	for _, r := range method {
		if r < 'A' || r > 'Z' {
			return "", invalidArgument("invalid method %q", method)
		}
	}
	return method, nil
}
