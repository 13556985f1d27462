package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/metrics"
	"github.com/Range-Software/range-cloud/pkg/types"
)

// Kind selects the client-authentication policy of a listener.
type Kind string

const (
	// Public accepts clients without a certificate; bearer tokens are
	// validated against the directory.
	Public Kind = "public"

	// Private requires a verified client certificate.
	Private Kind = "private"
)

// Wire headers of the action encoding.
const (
	HeaderActionID     = "X-Cloud-Action-Id"
	HeaderExecutor     = "X-Cloud-Executor"
	HeaderResourceName = "X-Cloud-Resource-Name"
	HeaderResourceID   = "X-Cloud-Resource-Id"
	HeaderError        = "X-Cloud-Error"
)

// Settings configures one listener. The key file must be unencrypted PEM.
type Settings struct {
	Kind               Kind
	Port               int
	CertFile           string
	KeyFile            string
	ClientCAFile       string
	RateLimitPerSecond int
}

// Dispatcher resolves inbound actions.
type Dispatcher interface {
	ResolveAction(action types.Action, from string)
}

// TokenValidator checks a one-shot bearer credential.
type TokenValidator interface {
	ValidateToken(resourceName, content string) bool
}

// Listener is one TLS endpoint translating HTTP requests into actions.
type Listener struct {
	settings   Settings
	dispatcher Dispatcher
	hub        *Hub
	validator  TokenValidator
	logger     zerolog.Logger

	server *http.Server

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewListener creates a listener. The validator is consulted only by the
// public listener and may be nil for the private one.
func NewListener(settings Settings, dispatcher Dispatcher, hub *Hub, validator TokenValidator) *Listener {
	return &Listener{
		settings:   settings,
		dispatcher: dispatcher,
		hub:        hub,
		validator:  validator,
		logger:     log.WithComponent(string(settings.Kind) + "-listener"),
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Handler returns the listener's HTTP handler.
func (l *Listener) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/action/{name}", l.handleAction)
	return r
}

// Start serves TLS until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	tlsConfig, err := l.tlsConfig()
	if err != nil {
		return err
	}

	addr := ":" + strconv.Itoa(l.settings.Port)
	l.server = &http.Server{
		Addr:         addr,
		Handler:      l.Handler(),
		TLSConfig:    tlsConfig,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l.logger.Info().Str("addr", addr).Msg("Listener started")

	errCh := make(chan error, 1)
	go func() {
		if err := l.server.Serve(tls.NewListener(ln, tlsConfig)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listener failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.server.Shutdown(shutdownCtx); err != nil {
		l.logger.Warn().Err(err).Msg("Listener shutdown failed")
	}
	l.logger.Info().Msg("Listener stopped")
	return nil
}

func (l *Listener) tlsConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(l.settings.CertFile, l.settings.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if l.settings.ClientCAFile != "" {
		caPEM, err := os.ReadFile(l.settings.ClientCAFile)
		switch {
		case err == nil:
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("failed to parse CA certificate %q", l.settings.ClientCAFile)
			}
			cfg.ClientCAs = pool
		case os.IsNotExist(err):
			l.logger.Warn().Str("file", l.settings.ClientCAFile).Msg("CA certificate not found, client certificates are not pinned")
		default:
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
	}

	// The CA pin is optional; without one the private endpoint still
	// demands a client certificate but cannot verify its chain.
	switch l.settings.Kind {
	case Private:
		if cfg.ClientCAs != nil {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			cfg.ClientAuth = tls.RequireAnyClientCert
		}
	default:
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return cfg, nil
}

func (l *Listener) handleAction(w http.ResponseWriter, r *http.Request) {
	peer := peerAddress(r)

	if !l.allow(peer) {
		metrics.RequestsThrottled.WithLabelValues(string(l.settings.Kind)).Inc()
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	executor, ok := l.authenticate(r)
	if !ok {
		metrics.RequestsTotal.WithLabelValues(string(l.settings.Kind), strconv.Itoa(http.StatusUnauthorized)).Inc()
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	action, err := l.parseAction(r, executor)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(string(l.settings.Kind), strconv.Itoa(http.StatusBadRequest)).Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	owner := executor
	if owner == "" {
		owner = types.GuestUser
	}
	from := owner + "@" + peer

	reply := l.hub.register(action.ID)
	l.dispatcher.ResolveAction(action, from)

	select {
	case resolved := <-reply:
		w.Header().Set(HeaderActionID, resolved.ID.String())
		w.Header().Set(HeaderError, resolved.ErrorType.String())
		if resolved.ResourceName != "" {
			w.Header().Set(HeaderResourceName, resolved.ResourceName)
		}
		if resolved.ResourceID != uuid.Nil {
			w.Header().Set(HeaderResourceID, resolved.ResourceID.String())
		}
		metrics.RequestsTotal.WithLabelValues(string(l.settings.Kind), strconv.Itoa(http.StatusOK)).Inc()
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(resolved.Data); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to write reply")
		}
	case <-r.Context().Done():
		l.hub.cancel(action.ID)
		l.logger.Warn().Str("action_id", action.ID.String()).Msg("Client gone before reply")
	}
}

// authenticate resolves the executor: the client certificate subject on
// mTLS connections, the bearer token's resource name on token requests,
// and the anonymous guest otherwise. A presented token is validated (and
// thereby consumed) before the action is built.
func (l *Listener) authenticate(r *http.Request) (string, bool) {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		return r.TLS.PeerCertificates[0].Subject.CommonName, true
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if l.validator == nil {
			return "", false
		}
		content := strings.TrimPrefix(auth, "Bearer ")
		executor := r.Header.Get(HeaderExecutor)
		if !l.validator.ValidateToken(executor, content) {
			l.logger.Warn().Str("executor", executor).Msg("Token validation failed")
			return "", false
		}
		return executor, true
	}

	// Anonymous public access resolves to the guest user.
	return "", true
}

func (l *Listener) parseAction(r *http.Request, executor string) (types.Action, error) {
	name := chi.URLParam(r, "name")
	action := types.Action{
		Name:     name,
		Executor: executor,
	}

	if v := r.Header.Get(HeaderActionID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return types.Action{}, fmt.Errorf("invalid action id %q", v)
		}
		action.ID = id
	} else {
		action.ID = uuid.New()
	}

	action.ResourceName = r.Header.Get(HeaderResourceName)
	if v := r.Header.Get(HeaderResourceID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return types.Action{}, fmt.Errorf("invalid resource id %q", v)
		}
		action.ResourceID = id
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return types.Action{}, fmt.Errorf("failed to read request body: %w", err)
	}
	action.Data = data

	return action, nil
}

// allow applies the per-peer rate limit.
func (l *Listener) allow(peer string) bool {
	if l.settings.RateLimitPerSecond <= 0 {
		return true
	}
	l.limiterMu.Lock()
	limiter, ok := l.limiters[peer]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.settings.RateLimitPerSecond), l.settings.RateLimitPerSecond)
		l.limiters[peer] = limiter
	}
	l.limiterMu.Unlock()
	return limiter.Allow()
}

func peerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
