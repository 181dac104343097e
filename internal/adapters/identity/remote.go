package identity

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gighop/internal/adapters/observability"
	"gighop/internal/domain"
)

const maxAttempts = 4

// Remote verifies ID tokens against an Identity Toolkit compatible
// accounts:lookup endpoint.
type Remote struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func NewRemote(base, key string, rps int) (*Remote, error) {
	if key == "" {
		return nil, fmt.Errorf("identity API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Remote{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 10 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

type lookupResponse struct {
	Users []struct {
		LocalID  string `json:"localId"`
		Disabled bool   `json:"disabled"`
	} `json:"users"`
}

// Authenticate resolves token to the account's local id.
func (c *Remote) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrNotAuthenticated
	}
	body, _ := json.Marshal(map[string]string{"idToken": token})

	var out lookupResponse
	if err := c.post(ctx, "/accounts:lookup", body, &out); err != nil {
		return "", err
	}
	if len(out.Users) == 0 || out.Users[0].LocalID == "" {
		return "", fmt.Errorf("%w: no account for token", domain.ErrNotAuthenticated)
	}
	if out.Users[0].Disabled {
		return "", fmt.Errorf("%w: account disabled", domain.ErrNotAuthenticated)
	}
	return out.Users[0].LocalID, nil
}

var errUpstream = errors.New("identity: upstream unavailable")

// post sends a JSON body with client-side rate limiting and retries on 429
// and transient 5xx, honoring Retry-After when provided.
func (c *Remote) post(ctx context.Context, endpoint string, body []byte, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	url := c.base + endpoint + "?key=" + c.key

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "gighop/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("identity", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %w", errUpstream, err)
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("identity", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		// the toolkit answers 400 INVALID_ID_TOKEN / TOKEN_EXPIRED for bad tokens
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: identity %d: %s", domain.ErrNotAuthenticated, resp.StatusCode, strings.TrimSpace(string(b)))

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("%w: remote %d", errUpstream, resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: bad status %d: %s", errUpstream, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff: 100ms doubling per attempt plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 100 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
