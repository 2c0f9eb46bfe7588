// Package transport issues JSON requests against the GymDesk API and keeps
// the session alive across access token expiry.
//
// Every authenticated call carries the stored access token as a bearer
// credential. A 401 triggers at most one refresh attempt followed by at most
// one retry; concurrent refreshes are coalesced into a single call.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/example/gymdesk-client/internal/apperror"
	"github.com/example/gymdesk-client/internal/credentials"
	"github.com/example/gymdesk-client/internal/logging"
)

// DefaultRefreshPath is the endpoint exchanging a refresh token for a new access token.
const DefaultRefreshPath = "/auth/refresh/"

const maxResponseBytes = 4 << 20

var (
	errNoRefreshToken   = errors.New("no refresh token stored")
	errMalformedRefresh = errors.New("refresh response did not contain an access token")
	errSessionChanged   = errors.New("session replaced while refreshing")
)

// Request describes one remote call.
type Request struct {
	// Op names the calling operation for logs and errors.
	Op     string
	Method string
	Path   string
	Query  url.Values
	// Body is encoded as JSON when non-nil.
	Body any
	// SkipAuth omits the bearer credential and disables refresh handling.
	SkipAuth bool
}

// Response is a successful result. Body is always a JSON value; an empty
// response body is reported as an empty object.
type Response struct {
	Status int
	Body   json.RawMessage
}

// Options configures an Executor.
type Options struct {
	BaseURL     string
	HTTPClient  *http.Client
	Store       credentials.Store
	RefreshPath string
	// Limiter paces outgoing requests when non-nil. It never retries.
	Limiter   *rate.Limiter
	Logger    *slog.Logger
	RequestID func() string
}

// Executor wraps every remote call with credential handling.
type Executor struct {
	baseURL     string
	client      *http.Client
	store       credentials.Store
	refreshPath string
	limiter     *rate.Limiter
	logger      *slog.Logger
	requestID   func() string
	refreshes   singleflight.Group

	mu       sync.Mutex
	rotation rotation
}

// rotation remembers the last refresh token exchange, so a request rejected
// with the pre-rotation token can still be retried in the same session.
type rotation struct {
	from string
	to   string
}

// New constructs an Executor.
func New(opts Options) (*Executor, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("transport: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("transport: invalid base URL: %w", err)
	}
	if opts.Store == nil {
		return nil, errors.New("transport: credential store is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	refreshPath := opts.RefreshPath
	if refreshPath == "" {
		refreshPath = DefaultRefreshPath
	}
	requestID := opts.RequestID
	if requestID == nil {
		requestID = func() string { return uuid.NewString() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		baseURL:     base,
		client:      client,
		store:       opts.Store,
		refreshPath: refreshPath,
		limiter:     opts.Limiter,
		logger:      logger,
		requestID:   requestID,
	}, nil
}

type rawResponse struct {
	status int
	body   []byte
}

// Do issues req and classifies the outcome. Failures are *apperror.Error values.
func (e *Executor) Do(ctx context.Context, req Request) (result Response, err error) {
	id := e.requestID()
	logger := logging.Component(ctx, e.logger, "component", "Executor", req.Op,
		"request_id", id,
		"method", req.Method,
		"path", req.Path,
	)
	start := time.Now()
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "request failed", "error", err, "error_kind", apperror.Label(err), "duration", time.Since(start))
			return
		}
		logger.DebugContext(ctx, "request completed", "status", result.Status, "duration", time.Since(start))
	}()

	payload, err := encodeBody(req.Body)
	if err != nil {
		return Response{}, &apperror.Error{Kind: apperror.KindUnknownServer, Op: req.Op, Message: "failed to encode request body", Err: err}
	}

	var sent credentials.Credentials
	if !req.SkipAuth {
		sent = e.store.Get()
	}

	raw, err := e.send(ctx, req, id, payload, sent.AccessToken)
	if err != nil {
		return Response{}, apperror.Network(req.Op, err)
	}

	if raw.status == http.StatusUnauthorized && !req.SkipAuth {
		refreshed, refreshErr := e.refresh(ctx, sent)
		switch {
		case errors.Is(refreshErr, errSessionChanged):
			logger.InfoContext(ctx, "session replaced while the request was in flight; not retrying")
		case refreshErr != nil:
			logger.InfoContext(ctx, "session refresh failed; credentials cleared", "error", refreshErr)
		default:
			logger.InfoContext(ctx, "session refreshed; retrying request")
			raw, err = e.send(ctx, req, id, payload, refreshed)
			if err != nil {
				return Response{}, apperror.Network(req.Op, err)
			}
		}
	}

	return classify(req.Op, raw, !req.SkipAuth)
}

// refresh exchanges the refresh token of the session sent belongs to for a
// new access token. Calls for the same refresh token share one round trip.
// Every store write is conditional on that session still being stored, so a
// logout or login that happens meanwhile is never overwritten.
func (e *Executor) refresh(ctx context.Context, sent credentials.Credentials) (string, error) {
	ctx = context.WithoutCancel(ctx)
	value, err, _ := e.refreshes.Do("refresh:"+sent.RefreshToken, func() (any, error) {
		if token, ok, err := e.reuse(sent); ok || err != nil {
			return token, err
		}
		if sent.RefreshToken == "" {
			e.store.ClearIf(func(c credentials.Credentials) bool {
				return c.RefreshToken == "" && c.AccessToken == sent.AccessToken
			})
			return "", errNoRefreshToken
		}

		token, rotated, err := e.exchange(ctx, sent.RefreshToken)
		if err != nil {
			if !e.store.ClearIf(credentials.HoldsRefreshToken(sent.RefreshToken)) {
				return "", errSessionChanged
			}
			return "", err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.store.SetIf(credentials.HoldsRefreshToken(sent.RefreshToken), credentials.TokenUpdate(token, rotated)) {
			return "", errSessionChanged
		}
		if rotated != "" {
			e.rotation = rotation{from: sent.RefreshToken, to: rotated}
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// reuse reports whether an earlier refresh in the same session already
// replaced the access token sent was rejected with. It fails with
// errSessionChanged when the stored credentials belong to another session.
func (e *Executor) reuse(sent credentials.Credentials) (string, bool, error) {
	e.mu.Lock()
	last := e.rotation
	e.mu.Unlock()

	current := e.store.Get()
	switch {
	case current.RefreshToken == sent.RefreshToken:
		if current.AccessToken != "" && current.AccessToken != sent.AccessToken {
			return current.AccessToken, true, nil
		}
		return "", false, nil
	case sent.RefreshToken != "" && last.from == sent.RefreshToken && last.to == current.RefreshToken && current.AccessToken != "":
		return current.AccessToken, true, nil
	default:
		return "", false, errSessionChanged
	}
}

func (e *Executor) exchange(ctx context.Context, refreshToken string) (access, rotated string, err error) {
	req := Request{
		Op:       "Refresh",
		Method:   http.MethodPost,
		Path:     e.refreshPath,
		SkipAuth: true,
	}
	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", "", err
	}

	raw, err := e.send(ctx, req, e.requestID(), payload, "")
	if err != nil {
		return "", "", apperror.Network(req.Op, err)
	}
	resp, err := classify(req.Op, raw, false)
	if err != nil {
		return "", "", err
	}

	var tokens struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(resp.Body, &tokens); err != nil || tokens.Access == "" {
		return "", "", errMalformedRefresh
	}
	return tokens.Access, tokens.Refresh, nil
}

func (e *Executor) send(ctx context.Context, req Request, requestID string, payload []byte, token string) (rawResponse, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return rawResponse{}, err
		}
	}

	target := e.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return rawResponse{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return rawResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return rawResponse{}, err
	}
	return rawResponse{status: resp.StatusCode, body: data}, nil
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	return json.Marshal(body)
}

// classify turns a raw response into a Response or a classified failure.
func classify(op string, raw rawResponse, authenticated bool) (Response, error) {
	body := normalizeBody(raw.body)
	envelope := decodeEnvelope(body)

	if raw.status < 200 || raw.status > 299 {
		message := envelope.message()
		if message == "" {
			message = apperror.StatusMessage(raw.status)
		}
		return Response{}, apperror.New(apperror.StatusKind(raw.status, authenticated), op, raw.status, message)
	}

	if envelope.Success != nil && !*envelope.Success {
		message := envelope.message()
		if message == "" {
			message = "request failed"
		}
		return Response{}, apperror.New(apperror.KindUnknownServer, op, raw.status, message)
	}

	return Response{Status: raw.status, Body: body}, nil
}

// normalizeBody reports an empty or unparseable body as an empty object.
func normalizeBody(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}

type envelope struct {
	Success *bool           `json:"success"`
	Error   json.RawMessage `json:"error"`
	Detail  json.RawMessage `json:"detail"`
	Message json.RawMessage `json:"message"`
}

func decodeEnvelope(body json.RawMessage) envelope {
	var env envelope
	if len(body) == 0 || body[0] != '{' {
		return env
	}
	_ = json.Unmarshal(body, &env)
	return env
}

func (e envelope) message() string {
	for _, field := range []json.RawMessage{e.Error, e.Detail, e.Message} {
		var text string
		if len(field) == 0 || json.Unmarshal(field, &text) != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}
