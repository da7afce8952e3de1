package roundtrip

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"agentloop/internal/application/port/output"

	"github.com/tidwall/gjson"
)

type loggingTransport struct {
	base   http.RoundTripper
	logger output.LoggerPort
}

// NewLoggingClient returns an HTTP client that logs a summary of every model
// request and response. Bodies are not logged, only their size and the
// model they target.
func NewLoggingClient(logger output.LoggerPort) *http.Client {
	return &http.Client{
		Transport: &loggingTransport{
			base:   http.DefaultTransport,
			logger: logger,
		},
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		bodyBytes, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	t.logger.Info("HTTP Request",
		"method", req.Method,
		"url", req.URL.String(),
		"model", gjson.GetBytes(bodyBytes, "model").String(),
		"stream", gjson.GetBytes(bodyBytes, "stream").Bool(),
		"messages", gjson.GetBytes(bodyBytes, "messages.#").Int(),
		"bodyBytes", len(bodyBytes),
	)

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Error("HTTP Request failed", "url", req.URL.String(), "error", err)
		return resp, err
	}

	t.logger.Info("HTTP Response",
		"status", resp.Status,
		"statusCode", resp.StatusCode,
		"elapsed", time.Since(start).String(),
	)
	return resp, nil
}
