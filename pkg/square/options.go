package square

import (
	"time"

	"github.com/Adda-Baaj/square-connect/pkg/httpclient"
)

// Options is the configuration record accepted by NewWithOptions.
type Options struct {
	AccessToken string
	// Logger receives every error before it is propagated. Defaults to a console logger on stderr.
	Logger Logger
	// HTTPClient overrides the transport. Defaults to a resty client using Timeout.
	HTTPClient httpclient.Client
	// BaseURL overrides scheme and host, e.g. for a sandbox. Defaults to DefaultBaseURL.
	BaseURL string
	// Timeout is applied to the default transport only; zero leaves requests unbounded.
	Timeout time.Duration
	// OnFault raises errors that have no callback to go to. Defaults to panic.
	OnFault func(error)
}

// Callback receives the outcome of an asynchronous call exactly once.
// Application errors arrive together with the response envelope.
type Callback func(resp *Response, err error)

// RequestOption customizes a single call. Options may be passed in any order,
// but each kind may appear at most once.
type RequestOption func(*call) error

// WithMethod sets the HTTP method (case-insensitive, defaults to GET).
func WithMethod(method string) RequestOption {
	return func(c *call) error {
		if c.methodSet {
			return invalidArgument("method supplied more than once (%q after %q)", method, c.method)
		}
		c.method = method
		c.methodSet = true
		return nil
	}
}

// WithParams sets request parameters: a query string for GET, a JSON body otherwise.
func WithParams(params map[string]any) RequestOption {
	return func(c *call) error {
		if c.paramsSet {
			return invalidArgument("params supplied more than once")
		}
		c.params = params
		c.paramsSet = true
		return nil
	}
}

// WithCallback sets the continuation used by API.
func WithCallback(cb Callback) RequestOption {
	return func(c *call) error {
		if cb == nil {
			return invalidArgument("nil callback")
		}
		if c.callback != nil {
			return invalidArgument("callback supplied more than once")
		}
		c.callback = cb
		return nil
	}
}
