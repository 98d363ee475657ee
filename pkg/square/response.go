package square

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/Adda-Baaj/square-connect/pkg/httpclient"
	"github.com/spf13/cast"
)

// Response is the envelope delivered for every call that reached the API.
// Data holds the decoded JSON body, the raw text when the body is not JSON,
// or nil when the body is empty. Error envelopes (4xx/5xx) with an empty or
// null body carry an empty object instead.
type Response struct {
	StatusCode int         `json:"statusCode"`
	Header     http.Header `json:"headers"`
	Data       any         `json:"data"`
	Body       []byte      `json:"-"`
}

func newResponse(resp httpclient.Response) *Response {
	body := resp.Body()
	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Data:       decodeData(body),
		Body:       body,
	}
}

func decodeData(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return string(body)
	}
	return data
}

// stringField stringifies body[key], returning fallback when it is absent or empty.
func stringField(body map[string]any, key, fallback string) string {
	raw, ok := body[key]
	if !ok || raw == nil {
		return fallback
	}
	s, err := cast.ToStringE(raw)
	if err != nil || s == "" {
		return fallback
	}
	return s
}
