package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Client issues API calls on behalf of a Session. Authenticated calls carry
// the session's bearer token; a 401 triggers one shared refresh and a single
// retry with the new token.
type Client struct {
	session *Session
}

// NewClient binds a request client to session.
func NewClient(session *Session) *Client {
	return &Client{session: session}
}

// Session returns the underlying session controller.
func (c *Client) Session() *Session { return c.session }

// Do sends req with the current access token. It fails with
// ErrNotAuthenticated when the session is anonymous and with
// ErrSessionExpired when a refresh after a 401 does not succeed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := makeReplayable(req); err != nil {
		return nil, err
	}
	token, err := c.session.accessToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	fresh, err := c.session.refreshAfter(ctx, token)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	retry, err := rewind(req)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, retry, fresh)
}

// DoAnonymous sends req without credentials and without retry.
func (c *Client) DoAnonymous(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.send(ctx, req, "")
}

// GetJSON fetches path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.SendJSON(ctx, http.MethodGet, path, nil, out)
}

// SendJSON sends in as a JSON body and decodes the response into out. Either
// may be nil. Non-2xx responses become *APIError.
func (c *Client) SendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.session.resolve(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(ctx)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	} else {
		r.Header.Del("Authorization")
	}
	return c.session.http.Do(r)
}

// makeReplayable buffers a body that cannot be re-read so the request can be
// retried after a refresh.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	return nil
}

func rewind(req *http.Request) (*http.Request, error) {
	if req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
