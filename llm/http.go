package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single provider exchange.
const DefaultTimeout = 60 * time.Second

// NewHTTPClient returns an HTTP client with a bounded timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// httpCaller is shared by the JSON-over-HTTP adapters.
type httpCaller struct {
	doer HTTPDoer
}

func newHTTPCaller(doer HTTPDoer) httpCaller {
	if doer == nil {
		doer = NewHTTPClient(DefaultTimeout)
	}
	return httpCaller{doer: doer}
}

func (c httpCaller) call(ctx context.Context, wire *WireRequest) (*RawResponse, error) {
	method := wire.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, wire.URL, bytes.NewReader(wire.Body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range wire.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &RawResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

func jsonHeader() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return h
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}

func networkError(provider string, cause error) *Error {
	return &Error{Kind: ErrNetwork, Provider: provider, Message: cause.Error(), Cause: cause}
}

func malformed(provider, msg string, raw *RawResponse) *Error {
	e := &Error{Kind: ErrProvider, Provider: provider, Message: msg}
	if raw != nil {
		e.Raw = raw.Body
	}
	return e
}

// flexString accepts a JSON string or number. Providers disagree on the type
// of error code fields.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(data)))
	return nil
}
