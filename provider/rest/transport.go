package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/sethvargo/go-retry"
)

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// token is the bearer token; the anon key is used when empty.
	token  string
	prefer string
}

func (r request) idempotent() bool {
	return r.method == http.MethodGet
}

// do sends r and decodes a successful body into out. Reads are retried with
// exponential backoff on network failures and 5xx responses.
func (p *Provider) do(ctx context.Context, op string, r request, out any) error {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return responseError(op, 0, err)
		}
	}

	attempt := func(ctx context.Context) error {
		err := p.send(ctx, op, r, payload, out)
		if err == nil {
			return nil
		}
		if perr, ok := asProviderError(err); ok && r.idempotent() && (perr.Status == 0 || perr.Status >= 500) {
			p.logger.Debug("retrying request", "operation", op, "status", perr.Status, "error", perr.Message)
			return retry.RetryableError(err)
		}
		return err
	}

	if !r.idempotent() || p.config.Retries == 0 {
		return attempt(ctx)
	}

	backoff := retry.WithMaxRetries(uint64(p.config.Retries), retry.NewExponential(p.config.RetryBase))
	return retry.Do(ctx, backoff, attempt)
}

func (p *Provider) send(ctx context.Context, op string, r request, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, p.endpoint(r.path, r.query), body)
	if err != nil {
		return networkError(op, err)
	}

	token := r.token
	if token == "" {
		token = p.config.AnonKey
	}
	req.Header.Set("apikey", p.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return networkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(op, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return responseError(op, resp.StatusCode, err)
	}
	return nil
}
