package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/buried-treasure-go/internal/game"
	"github.com/MJE43/buried-treasure-go/internal/grid"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

// HTTP drives a remote engine through its JSON API.
type HTTP struct {
	base   string
	http   *http.Client
	dialer *websocket.Dialer
}

// NewHTTP returns a transport for the API at baseURL, e.g.
// "http://localhost:8080". A nil client gets a 30s timeout.
func NewHTTP(baseURL string, hc *http.Client) *HTTP {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{
		base:   strings.TrimRight(baseURL, "/"),
		http:   hc,
		dialer: websocket.DefaultDialer,
	}
}

type actionRequest struct {
	Wallet  string `json:"wallet"`
	TargetX *int   `json:"targetX,omitempty"`
	TargetY *int   `json:"targetY,omitempty"`
	Amount  *uint  `json:"amount,omitempty"`
}

type stateResponse struct {
	State store.PlayerRecord `json:"state"`
}

// apiError is the error body the API writes.
type apiError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Retryable bool   `json:"retryable"`
}

func target(id string, c grid.Coord) actionRequest {
	x, y := c.X, c.Y
	return actionRequest{Wallet: id, TargetX: &x, TargetY: &y}
}

func (h *HTTP) Register(ctx context.Context, id string) (game.Registration, error) {
	var out game.Registration
	err := h.do(ctx, http.MethodPost, "/api/v1/game/register", actionRequest{Wallet: id}, &out)
	return out, err
}

func (h *HTTP) State(ctx context.Context, id string) (store.PlayerRecord, error) {
	var out stateResponse
	err := h.do(ctx, http.MethodGet, "/api/v1/game/state?wallet="+url.QueryEscape(id), nil, &out)
	return out.State, err
}

func (h *HTTP) Move(ctx context.Context, id string, c grid.Coord) (game.MoveResult, error) {
	var out game.MoveResult
	err := h.do(ctx, http.MethodPost, "/api/v1/game/move", target(id, c), &out)
	return out, err
}

func (h *HTTP) Explore(ctx context.Context, id string, c grid.Coord) (game.ExploreResult, error) {
	var out game.ExploreResult
	err := h.do(ctx, http.MethodPost, "/api/v1/game/explore", target(id, c), &out)
	return out, err
}

func (h *HTTP) Dig(ctx context.Context, id string, c grid.Coord) (game.DigResult, error) {
	var out game.DigResult
	err := h.do(ctx, http.MethodPost, "/api/v1/game/dig", target(id, c), &out)
	return out, err
}

func (h *HTTP) Bury(ctx context.Context, id string, c grid.Coord, amount uint) (game.BuryResult, error) {
	req := target(id, c)
	req.Amount = &amount
	var out game.BuryResult
	err := h.do(ctx, http.MethodPost, "/api/v1/game/bury", req, &out)
	return out, err
}

// Watch opens the state stream for id over a websocket.
func (h *HTTP) Watch(ctx context.Context, id string) (<-chan store.PlayerRecord, error) {
	u, err := url.Parse(h.base + "/api/v1/game/stream")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"wallet": {id}}.Encode()

	conn, _, err := h.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial state stream: %w", err)
	}

	out := make(chan store.PlayerRecord, 1)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var rec store.PlayerRecord
			if err := conn.ReadJSON(&rec); err != nil {
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return &game.Error{Kind: game.KindComputeUnavailable, Reason: "engine unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &game.Error{Kind: game.KindInternal, Reason: "unreadable engine response", Cause: err}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body apiError
	if err := json.Unmarshal(data, &body); err != nil || body.Type == "" {
		return &game.Error{
			Kind:   game.KindInternal,
			Reason: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}
	return &game.Error{Kind: game.Kind(body.Type), Reason: body.Message}
}

var (
	_ Transport = (*HTTP)(nil)
	_ Watcher   = (*HTTP)(nil)
)
