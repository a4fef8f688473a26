package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// RequestJSON performs an HTTP exchange with retries for transient
// failures. Transport errors and 5xx responses are retried; 4xx
// responses are returned to the caller as-is. The caller's context
// bounds the whole exchange including retry sleeps.
func RequestJSON(ctx context.Context, client *http.Client, method, url string, body []byte, headers map[string]string, retries int, retryDelay time.Duration) (int, []byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if retries < 0 {
		retries = 0
	}
	var (
		status  int
		resp    []byte
		lastErr error
	)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		status, resp, lastErr = exchange(ctx, client, method, url, body, headers)
		retryable := lastErr != nil || status >= http.StatusInternalServerError
		if !retryable || attempt >= retries {
			return status, resp, lastErr
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}
}

func exchange(ctx context.Context, client *http.Client, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, respBody, nil
}
