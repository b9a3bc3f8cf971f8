package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// RemoteConfig configures a client for a cluster served by NewHandler.
type RemoteConfig struct {
	// BaseURL of the cluster, e.g. "http://localhost:8081".
	BaseURL string

	// MaxRetries bounds Submit retries on transport failures. Defaults to 3.
	MaxRetries uint64

	// BaseRetryDelay is the first backoff step. Defaults to 200ms.
	BaseRetryDelay time.Duration

	// HTTPClient allows injecting a custom client. It must not carry a
	// timeout shorter than the longest Await.
	HTTPClient *http.Client
}

// Remote talks to a cluster over HTTP. Retrying Submit is safe because the
// cluster deduplicates by job ID.
type Remote struct {
	base string
	cfg  RemoteConfig
	http *http.Client
}

func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 200 * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Remote{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:  cfg,
		http: httpClient,
	}
}

func (r *Remote) Submit(ctx context.Context, job Job) (Handle, error) {
	if err := job.validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	var handle Handle
	backoff := retry.WithMaxRetries(r.cfg.MaxRetries, retry.NewExponential(r.cfg.BaseRetryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/jobs", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			return errorFromResponse(resp)
		}
		var out submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode submit response: %w", err)
		}
		handle = out.Handle
		return nil
	})
	if err != nil {
		return "", err
	}
	return handle, nil
}

// awaitSlack covers the round trip on top of the server-side wait.
const awaitSlack = 2 * time.Second

func (r *Remote) Await(ctx context.Context, h Handle, timeout time.Duration) (Result, error) {
	u := r.base + "/jobs/" + url.PathEscape(string(h))
	if timeout > 0 {
		u += "?timeout=" + strconv.FormatInt(timeout.Milliseconds(), 10)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout+awaitSlack)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, ErrTimedOut
		}
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, errorFromResponse(resp)
	}
	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}

func (r *Remote) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}
	return nil
}

// errorFromResponse maps a non-success status back to the gateway sentinels.
func errorFromResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorResponse
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case http.StatusServiceUnavailable:
		sentinel = ErrUnavailable
	case http.StatusGatewayTimeout:
		sentinel = ErrTimedOut
	case http.StatusNotFound:
		sentinel = ErrUnknownHandle
	case http.StatusBadRequest:
		sentinel = ErrInvalidJob
	default:
		return fmt.Errorf("gateway: unexpected status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w (status %d: %s)", sentinel, resp.StatusCode, msg)
}

var _ Gateway = (*Remote)(nil)
