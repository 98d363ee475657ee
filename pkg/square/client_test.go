package square

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/square-connect/pkg/httpclient"
)

type fakeResponse struct {
	status int
	body   []byte
	header http.Header
}

func (f fakeResponse) Body() []byte        { return f.body }
func (f fakeResponse) StatusCode() int     { return f.status }
func (f fakeResponse) Header() http.Header { return f.header }

// fakeTransport records requests and returns a canned response or error.
type fakeTransport struct {
	mu   sync.Mutex
	reqs []httpclient.Request
	resp httpclient.Response
	err  error
}

func (f *fakeTransport) Do(_ context.Context, req httpclient.Request) (httpclient.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeTransport) requests() []httpclient.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]httpclient.Request(nil), f.reqs...)
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []any
}

func (r *recordingLogger) DebugObj(string, string, interface{}) {}
func (r *recordingLogger) ErrorObj(_, _ string, obj interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, obj)
}

func (r *recordingLogger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func okTransport() *fakeTransport {
	return &fakeTransport{resp: fakeResponse{status: http.StatusOK, body: []byte(`{}`)}}
}

func newTestClient(t *testing.T, transport httpclient.Client, log Logger) *Client {
	t.Helper()
	return NewWithOptions(Options{
		AccessToken: "tok",
		HTTPClient:  transport,
		Logger:      log,
		OnFault:     func(err error) { t.Errorf("unexpected fault: %v", err) },
	})
}

// waitFor blocks until a callback outcome arrives and asserts no second one follows.
type outcome struct {
	resp *Response
	err  error
}

func collect() (Callback, <-chan outcome) {
	ch := make(chan outcome, 4)
	return func(resp *Response, err error) { ch <- outcome{resp: resp, err: err} }, ch
}

func waitOnce(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	var got outcome
	select {
	case got = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("callback was not invoked")
	}
	select {
	case <-ch:
		t.Fatalf("callback invoked more than once")
	case <-time.After(50 * time.Millisecond):
	}
	return got
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New("tok")
	assert.Equal(t, "tok", c.accessToken)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.NotNil(t, c.http)
	assert.NotNil(t, c.log)
	assert.NotNil(t, c.fault)
}

func TestDoPrefixesAPIVersion(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{path: "me/payments", want: "https://connect.squareup.com/v1/me/payments"},
		{path: "/me/payments", want: "https://connect.squareup.com/v1/me/payments"},
		{path: "", want: "https://connect.squareup.com/v1/"},
	}
	for _, tc := range cases {
		transport := okTransport()
		c := newTestClient(t, transport, &recordingLogger{})

		_, err := c.Do(context.Background(), tc.path)
		require.NoError(t, err)

		reqs := transport.requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, tc.want, reqs[0].URL, "path %q", tc.path)
		assert.Equal(t, http.MethodGet, reqs[0].Method)
		assert.Equal(t, "Bearer tok", reqs[0].Headers["Authorization"])
	}
}

func TestDoGETSendsParamsAsQuery(t *testing.T) {
	var (
		gotPath  string
		gotQuery string
		gotAuth  string
		gotBody  []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p1"}`))
	}))
	defer srv.Close()

	c := NewWithOptions(Options{AccessToken: "tok", BaseURL: srv.URL, Logger: &recordingLogger{}})
	resp, err := c.Do(context.Background(), "me/payments", WithParams(map[string]any{
		"limit": 10,
		"order": "ASC",
		"ids":   []any{"a", "b"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "/v1/me/payments", gotPath)
	assert.Equal(t, "ids=a&ids=b&limit=10&order=ASC", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Empty(t, gotBody)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"id": "p1"}, resp.Data)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestDoNonGETSendsParamsAsJSONBody(t *testing.T) {
	var (
		gotMethod string
		gotQuery  string
		gotType   string
		gotBody   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"refund-1"}`))
	}))
	defer srv.Close()

	c := NewWithOptions(Options{AccessToken: "tok", BaseURL: srv.URL + "/", Logger: &recordingLogger{}})
	resp, err := c.Do(context.Background(), "/me/refunds",
		WithMethod("post"),
		WithParams(map[string]any{"payment_id": "p1", "refunded_money": map[string]any{"amount": 100}}),
	)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Empty(t, gotQuery)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"payment_id":"p1","refunded_money":{"amount":100}}`, string(gotBody))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestDoClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		body        string
		wantErr     bool
		wantMessage string
		wantType    string
		wantData    any
	}{
		{name: "ok", status: 200, body: `{"id":"1"}`},
		{name: "not modified", status: 304},
		{name: "upper success bound", status: 399},
		{name: "outside error range", status: 600, body: `{"message":"odd"}`},
		{name: "bad request", status: 400, body: `{"message":"bad","type":"bad_request"}`, wantErr: true, wantMessage: "bad", wantType: "bad_request"},
		{name: "empty object", status: 599, body: `{}`, wantErr: true, wantMessage: defaultErrorMessage, wantType: defaultErrorType},
		{name: "no body", status: 404, wantErr: true, wantMessage: defaultErrorMessage, wantType: defaultErrorType, wantData: map[string]any{}},
		{name: "null body", status: 500, body: "null", wantErr: true, wantMessage: defaultErrorMessage, wantType: defaultErrorType, wantData: map[string]any{}},
		{name: "not json", status: 503, body: "upstream down", wantErr: true, wantMessage: defaultErrorMessage, wantType: defaultErrorType},
		{name: "numeric message", status: 422, body: `{"message":42}`, wantErr: true, wantMessage: "42", wantType: defaultErrorType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &fakeTransport{resp: fakeResponse{status: tc.status, body: []byte(tc.body)}}
			log := &recordingLogger{}
			c := newTestClient(t, transport, log)

			resp, err := c.Do(context.Background(), "/locations")
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)

			if !tc.wantErr {
				assert.NoError(t, err)
				assert.Zero(t, log.count())
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrApplication)
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.wantMessage, apiErr.Message)
			assert.Equal(t, tc.wantType, apiErr.Type)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, 1, log.count())
			if tc.wantData != nil {
				assert.Equal(t, tc.wantData, resp.Data)
			}
		})
	}
}

func TestDoTransportErrorHasNoEnvelope(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	log := &recordingLogger{}
	c := newTestClient(t, &fakeTransport{err: cause}, log)

	resp, err := c.Do(context.Background(), "/locations")
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, log.count())
}

func TestDoRejectsInvalidArguments(t *testing.T) {
	cases := []struct {
		name string
		path string
		opts []RequestOption
	}{
		{name: "absolute url", path: "https://evil.example/v1/x"},
		{name: "query in path", path: "/payments?limit=1"},
		{name: "fragment in path", path: "/payments#top"},
		{name: "whitespace", path: "/pay ments"},
		{name: "bad method", path: "/payments", opts: []RequestOption{WithMethod("GE T")}},
		{name: "unserializable params", path: "/payments", opts: []RequestOption{WithMethod("POST"), WithParams(map[string]any{"ch": make(chan int)})}},
		{name: "callback", path: "/payments", opts: []RequestOption{WithCallback(func(*Response, error) {})}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := okTransport()
			c := newTestClient(t, transport, &recordingLogger{})

			resp, err := c.Do(context.Background(), tc.path, tc.opts...)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Empty(t, transport.requests())
		})
	}
}

func TestAPIDeliversSuccessExactlyOnce(t *testing.T) {
	transport := okTransport()
	c := newTestClient(t, transport, &recordingLogger{})
	cb, ch := collect()

	require.True(t, c.API(context.Background(), "/me/locations", WithCallback(cb)))

	got := waitOnce(t, ch)
	assert.NoError(t, got.err)
	require.NotNil(t, got.resp)
	assert.Equal(t, http.StatusOK, got.resp.StatusCode)
}

func TestAPIAcceptsOptionsInAnyOrder(t *testing.T) {
	transport := okTransport()
	c := newTestClient(t, transport, &recordingLogger{})
	cb, ch := collect()

	ok := c.API(context.Background(), "me/items/1",
		WithCallback(cb),
		WithParams(map[string]any{"name": "Latte"}),
		WithMethod("put"),
	)
	require.True(t, ok)
	waitOnce(t, ch)

	reqs := transport.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Empty(t, reqs[0].Query)
	body, isBytes := reqs[0].Body.([]byte)
	require.True(t, isBytes)
	assert.JSONEq(t, `{"name":"Latte"}`, string(body))
}

func TestAPIApplicationErrorCarriesEnvelope(t *testing.T) {
	transport := &fakeTransport{resp: fakeResponse{
		status: http.StatusUnauthorized,
		body:   []byte(`{"type":"service.not_authorized","message":"Not Authorized"}`),
		header: http.Header{"X-Request-Id": []string{"r1"}},
	}}
	log := &recordingLogger{}
	c := newTestClient(t, transport, log)
	cb, ch := collect()

	require.True(t, c.API(context.Background(), "/me", WithCallback(cb)))
	got := waitOnce(t, ch)

	var apiErr *Error
	require.ErrorAs(t, got.err, &apiErr)
	assert.Equal(t, "Not Authorized", apiErr.Message)
	assert.Equal(t, "service.not_authorized", apiErr.Type)
	require.NotNil(t, got.resp)
	assert.Equal(t, http.StatusUnauthorized, got.resp.StatusCode)
	assert.Equal(t, "r1", got.resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "Not Authorized", got.resp.Data.(map[string]any)["message"])
	assert.Equal(t, 1, log.count())
}

func TestAPIInvalidPathDeliveredToCallback(t *testing.T) {
	transport := okTransport()
	log := &recordingLogger{}
	c := newTestClient(t, transport, log)

	var (
		calls   int
		gotResp *Response
		gotErr  error
	)
	ok := c.API(context.Background(), "https://evil.example/x", WithCallback(func(resp *Response, err error) {
		calls++
		gotResp, gotErr = resp, err
	}))

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Nil(t, gotResp)
	assert.ErrorIs(t, gotErr, ErrInvalidArgument)
	assert.Empty(t, transport.requests())
	assert.Equal(t, 1, log.count())
}

func TestAPIInvalidPathWithoutCallbackPanics(t *testing.T) {
	transport := okTransport()
	c := NewWithOptions(Options{AccessToken: "tok", HTTPClient: transport, Logger: &recordingLogger{}})

	assert.PanicsWithError(t, `square: invalid path passed to API(): "https://evil.example/x"`, func() {
		c.API(context.Background(), "https://evil.example/x")
	})
	assert.Empty(t, transport.requests())
}

func TestAPIRejectsDuplicateOptionKinds(t *testing.T) {
	cases := []struct {
		name string
		opts func(cb Callback) []RequestOption
	}{
		{name: "two methods", opts: func(cb Callback) []RequestOption {
			return []RequestOption{WithMethod("GET"), WithCallback(cb), WithMethod("POST")}
		}},
		{name: "two params", opts: func(cb Callback) []RequestOption {
			return []RequestOption{WithParams(nil), WithParams(map[string]any{"a": 1}), WithCallback(cb)}
		}},
		{name: "two callbacks", opts: func(cb Callback) []RequestOption {
			return []RequestOption{WithCallback(cb), WithCallback(func(*Response, error) {})}
		}},
		{name: "nil option", opts: func(cb Callback) []RequestOption {
			return []RequestOption{nil, WithCallback(cb)}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := okTransport()
			c := newTestClient(t, transport, &recordingLogger{})
			cb, ch := collect()

			ok := c.API(context.Background(), "/payments", tc.opts(cb)...)

			assert.False(t, ok)
			got := waitOnce(t, ch)
			assert.Nil(t, got.resp)
			assert.ErrorIs(t, got.err, ErrInvalidArgument)
			assert.Empty(t, transport.requests())
		})
	}
}

func TestAPIRaisesFaultWithoutCallback(t *testing.T) {
	faults := make(chan error, 1)
	log := &recordingLogger{}
	c := NewWithOptions(Options{
		AccessToken: "tok",
		HTTPClient:  &fakeTransport{err: errors.New("no route to host")},
		Logger:      log,
		OnFault:     func(err error) { faults <- err },
	})

	require.True(t, c.API(context.Background(), "/payments"))

	select {
	case err := <-faults:
		assert.ErrorIs(t, err, ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatalf("fault was not raised")
	}
	assert.Equal(t, 1, log.count())
}

func TestAPISuccessWithoutCallbackIsSilent(t *testing.T) {
	transport := okTransport()
	c := newTestClient(t, transport, &recordingLogger{})

	require.True(t, c.API(context.Background(), "/payments"))
	assert.Eventually(t, func() bool { return len(transport.requests()) == 1 }, time.Second, 10*time.Millisecond)
}
