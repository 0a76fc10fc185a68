package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// allowedResponseHeaders is the allow-list applied when rebuilding a
// downstream response toward the client. Anything not listed is dropped.
var allowedResponseHeaders = map[string]bool{
	"access-control-allow-origin":  true,
	"access-control-allow-headers": true,
	"access-control-allow-methods": true,
	"content-type":                 true,
	"content-length":               true,
	"cache-control":                true,
	"connection":                   true,
	"user":                         true,
	"date":                         true,
	"requires-tool-call":           true,
}

// CopyResponseHeaders copies headers from an upstream response into w.
// When allowList is true only the allow-listed headers survive; otherwise
// every header is copied verbatim.
func CopyResponseHeaders(w http.ResponseWriter, upstream *http.Response, allowList bool) {
	for name, values := range upstream.Header {
		if allowList && !allowedResponseHeaders[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
}

// ForwardResponse relays an upstream response to the client: status,
// allow-listed headers, and the body streamed through with per-write
// flushing so SSE frames reach the client as they arrive.
func ForwardResponse(w http.ResponseWriter, upstream *http.Response) error {
	CopyResponseHeaders(w, upstream, true)
	w.WriteHeader(upstream.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := upstream.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return Operationf("failed to relay response body: %v", werr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return Operationf("failed to read upstream body: %v", err)
		}
	}
}

// WriteJSONResponse writes data as a JSON body with the given status.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}
