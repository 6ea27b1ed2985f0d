// Package apigateway is the HTTP/JSON control surface collaborator of
// spec.md §4.7/§6.2: a long-lived listener bound to a configured prefix,
// gated by an optional HTTP Basic-auth table, forwarding authorized
// requests to a polymorphic Handler and encoding every response as a
// fixed JSON envelope.
package apigateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// Envelope is the fixed JSON response shape of spec.md §6.2.
type Envelope struct {
	Result any          `json:"result"`
	Error  *EnvelopeErr `json:"error"`
	ID     *string      `json:"id"`
}

// EnvelopeErr is the error member of Envelope.
type EnvelopeErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler answers one request body, returning the value to place in
// Envelope.Result or an error to report as Envelope.Error.
type Handler interface {
	Handle(ctx context.Context, id *string, body []byte) (result any, err error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, id *string, body []byte) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, id *string, body []byte) (any, error) {
	return f(ctx, id, body)
}

// Config configures a Gateway.
type Config struct {
	// Prefix is the URL path prefix this gateway is mounted under.
	Prefix string
	// AuthorizedUsers maps username to password. Absent or empty disables
	// Basic auth entirely (spec.md §8 "Empty-auth table" scenario).
	AuthorizedUsers map[string]string
	Handler         Handler
	Logger          *slog.Logger
}

// Gateway is a long-lived HTTP listener per spec.md §4.7.
type Gateway struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New constructs a Gateway bound to addr, not yet listening.
func New(addr string, cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{cfg: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Prefix, g.serve)
	g.srv = &http.Server{Addr: addr, Handler: mux}
	return g
}

// ListenAndServe runs the accept loop until Shutdown is called or the
// listener fails to bind. A bind failure is logged and returned without
// retry (spec.md §7).
func (g *Gateway) ListenAndServe() error {
	g.logger.Info("apigateway listening", "addr", g.srv.Addr, "prefix", g.cfg.Prefix)
	err := g.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		g.logger.Error("apigateway listener failed", "error", err)
	}
	return err
}

// Shutdown stops the listener, causing the accept loop in ListenAndServe
// to return.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("apigateway shutting down")
	return g.srv.Shutdown(ctx)
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	if !g.authorize(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="ixian-node"`)
		g.writeError(w, http.StatusUnauthorized, 401, "unauthorized")
		return
	}

	body, err := readLimitedBody(r)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, 400, "request body too large or unreadable")
		return
	}

	var id *string
	if raw := r.URL.Query().Get("id"); raw != "" {
		id = &raw
	}

	result, err := g.cfg.Handler.Handle(r.Context(), id, body)
	if err != nil {
		g.logger.Warn("apigateway handler error", "error", err)
		g.writeError(w, http.StatusOK, 500, err.Error())
		return
	}

	g.writeResult(w, result, id)
}

// authorize reports whether r carries valid credentials. An empty or nil
// AuthorizedUsers table admits every request (spec.md §8 "Empty-auth
// table" scenario).
func (g *Gateway) authorize(r *http.Request) bool {
	if len(g.cfg.AuthorizedUsers) == 0 {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	want, known := g.cfg.AuthorizedUsers[user]
	if !known {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(pass)) == 1
}

func (g *Gateway) writeResult(w http.ResponseWriter, result any, id *string) {
	g.writeEnvelope(w, http.StatusOK, Envelope{Result: result, ID: id})
}

func (g *Gateway) writeError(w http.ResponseWriter, status, code int, message string) {
	g.writeEnvelope(w, status, Envelope{Error: &EnvelopeErr{Code: code, Message: message}})
}

func (g *Gateway) writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		g.logger.Error("apigateway envelope encode failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

const maxRequestBodyBytes = 1 << 20

func readLimitedBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxRequestBodyBytes {
		return nil, errors.New("request body exceeds limit")
	}
	return body, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
