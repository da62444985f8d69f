// Package dispatch: shared HTTP plumbing for platform adapters.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"
)

// platformTimeout caps every outbound platform call. On timeout the request
// is treated as failed and surfaced to the caller; there is no automatic
// retry.
const platformTimeout = 30 * time.Second

// newHTTPClient returns the http.Client used by all adapters.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: platformTimeout}
}

// postJSON sends a JSON body and returns the status code, response body,
// and the Retry-After header value (empty when absent). A transport-level
// failure (including timeout) is returned as err.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) (int, []byte, string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, "", err
	}
	return resp.StatusCode, data, resp.Header.Get("Retry-After"), nil
}

// receiptLog tracks the last reconciled delivery status per message id for
// adapters whose platforms emit receipts.
type receiptLog struct {
	mu sync.RWMutex
	m  map[string]Status
}

func newReceiptLog() *receiptLog {
	return &receiptLog{m: make(map[string]Status)}
}

// record applies a status, honoring the forward-only rule.
func (r *receiptLog) record(messageID string, st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.m[messageID]; ok && cur.rank() >= st.rank() {
		return
	}
	r.m[messageID] = st
}

// get returns the tracked status, StatusPending when unknown.
func (r *receiptLog) get(messageID string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.m[messageID]; ok {
		return st
	}
	return StatusPending
}
