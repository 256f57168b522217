package llm

import (
	"net/http"
	"time"
)

const requestIDHeader = "X-Request-Id"

// contextAwareTransport copies the conversation ID from the request context
// into X-Request-Id so provider-side logs can be matched to a dialog.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := GetConversationID(req.Context()); id != nil {
		req = req.Clone(req.Context())
		req.Header.Set(requestIDHeader, id.String())
	}
	return t.base.RoundTrip(req)
}

// newHTTPClient returns the HTTP client shared by all adapters.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &contextAwareTransport{base: http.DefaultTransport},
	}
}
