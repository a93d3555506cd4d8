package util

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxLoggedBody caps how much of a body ends up in a single log line.
const maxLoggedBody = 4096

// LoggingTransport is an http.RoundTripper that logs requests and response
// bodies when its logger has debug enabled.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger *zap.Logger
}

func (t *LoggingTransport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Logger == nil || !t.Logger.Core().Enabled(zapcore.DebugLevel) {
		return t.base().RoundTrip(req)
	}

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	fields := []zap.Field{zap.String("method", req.Method), zap.String("url", req.URL.String())}
	if len(reqBody) > 0 {
		// Avoid logging large binary uploads
		if strings.Contains(req.Header.Get("Content-Type"), "multipart/form-data") {
			fields = append(fields, zap.Int("body_len", len(reqBody)))
		} else {
			fields = append(fields, zap.String("body", truncate(reqBody)))
		}
	}
	t.Logger.Debug("outbound request", fields...)

	start := time.Now()
	resp, err := t.base().RoundTrip(req)
	if err != nil {
		t.Logger.Debug("outbound request failed", zap.String("url", req.URL.String()), zap.Error(err))
		return resp, err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewBuffer(respBody))

	t.Logger.Debug("outbound response",
		zap.Int("status", resp.StatusCode),
		zap.String("url", req.URL.String()),
		zap.Duration("took", time.Since(start)),
		zap.String("body", truncate(respBody)),
	)

	return resp, nil
}

func truncate(b []byte) string {
	if len(b) <= maxLoggedBody {
		return string(b)
	}
	return string(b[:maxLoggedBody]) + "...(truncated)"
}
