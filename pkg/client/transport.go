package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"boardsync/pkg/auth"
	"boardsync/pkg/logger"
	"boardsync/pkg/models"
)

// Transport implements Mutator and Subscriber over the boardsync HTTP
// and websocket API. Mutations are fire-and-forget: failures are
// logged and the next reconciliation pass corrects the divergence.
type Transport struct {
	base       string // e.g. http://127.0.0.1:8080
	apiKey     string
	actorID    string
	signingKey string
	httpc      *http.Client
}

// NewTransport builds a Transport for actorID against base. signingKey
// may be empty when the server does not require signed actors.
func NewTransport(base, apiKey, actorID, signingKey string) *Transport {
	return &Transport{
		base:       strings.TrimRight(base, "/"),
		apiKey:     apiKey,
		actorID:    actorID,
		signingKey: signingKey,
		httpc:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Capabilities returns the capability bundle backed by this transport.
func (t *Transport) Capabilities() Capabilities {
	return Capabilities{Mutator: t, Subscriber: t}
}

// Mutate maps an operation name onto its HTTP endpoint and submits it.
// No result is returned; server rejections are logged only.
func (t *Transport) Mutate(ctx context.Context, operation string, args any) {
	ma, ok := args.(MutationArgs)
	if !ok {
		logger.Error("mutate_bad_args", "operation", operation)
		return
	}
	var method, path string
	var body any
	switch operation {
	case OpAcquireLock:
		method, path = http.MethodPost, "/v1/resources/"+ma.ResourceID+"/lock"
	case OpReleaseLock:
		method, path = http.MethodDelete, "/v1/resources/"+ma.ResourceID+"/lock"
		if len(ma.Payload) > 0 {
			body = json.RawMessage(ma.Payload)
		}
	case OpUpdateShape:
		method, path = http.MethodPost, "/v1/resources/"+ma.ResourceID+"/commit"
		body = json.RawMessage(ma.Payload)
	case OpDeleteResource:
		method, path = http.MethodDelete, "/v1/resources/"+ma.ResourceID
	case OpContribute:
		method, path = http.MethodPut, "/v1/docs/"+ma.DocID+"/contributions"
		// contribute payloads already carry actor_name + content
		body = json.RawMessage(ma.Payload)
	default:
		logger.Error("mutate_unknown_operation", "operation", operation)
		return
	}
	if err := t.do(ctx, method, path, body); err != nil {
		logger.Warn("mutation_failed", "operation", operation, "error", err.Error())
	}
}

func (t *Transport) do(ctx context.Context, method, path string, body any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req.Header)
	resp, err := t.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return nil
}

func (t *Transport) authorize(h http.Header) {
	if t.apiKey != "" {
		h.Set("Authorization", "Bearer "+t.apiKey)
	}
	h.Set("X-Actor-ID", t.actorID)
	if t.signingKey != "" {
		h.Set("X-Actor-Signature", auth.SignActor(t.signingKey, t.actorID))
	}
}

// Subscribe attaches to a board's live event feed. query is the board
// id. Updates are raw event JSON, delivered in order; the connection
// reconnects with exponential backoff and resumes from the last seen
// sequence so no event is replayed twice or skipped.
func (t *Transport) Subscribe(ctx context.Context, query string, onUpdate func(payload []byte)) (func(), error) {
	wsBase := t.base
	wsBase = strings.Replace(wsBase, "https://", "wss://", 1)
	wsBase = strings.Replace(wsBase, "http://", "ws://", 1)

	ctx, cancel := context.WithCancel(ctx)
	var (
		mu   sync.Mutex
		conn *websocket.Conn
		seq  uint64
	)
	dial := func() (*websocket.Conn, error) {
		mu.Lock()
		since := seq
		mu.Unlock()
		u := wsBase + "/v1/boards/" + query + "/subscribe?api_key=" + url.QueryEscape(t.apiKey)
		if since > 0 {
			u += fmt.Sprintf("&since=%d", since)
		}
		hdr := http.Header{}
		hdr.Set("X-Actor-ID", t.actorID)
		if t.signingKey != "" {
			hdr.Set("X-Actor-Signature", auth.SignActor(t.signingKey, t.actorID))
		}
		c, _, err := websocket.DefaultDialer.DialContext(ctx, u, hdr)
		return c, err
	}

	first, err := dial()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", query, err)
	}
	mu.Lock()
	conn = first
	mu.Unlock()

	go func() {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 0
		for {
			mu.Lock()
			c := conn
			mu.Unlock()
			for {
				_, msg, err := c.ReadMessage()
				if err != nil {
					break
				}
				var ev models.Event
				if json.Unmarshal(msg, &ev) == nil && ev.Seq > 0 {
					mu.Lock()
					seq = ev.Seq
					mu.Unlock()
				}
				onUpdate(msg)
				bo.Reset()
			}
			c.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Warn("subscribe_reconnecting", "board", query)
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(bo.NextBackOff()):
				}
				next, err := dial()
				if err == nil {
					mu.Lock()
					conn = next
					mu.Unlock()
					break
				}
				logger.Warn("subscribe_redial_failed", "board", query, "error", err.Error())
			}
		}
	}()

	return func() {
		cancel()
		mu.Lock()
		if conn != nil {
			conn.Close()
		}
		mu.Unlock()
	}, nil
}
