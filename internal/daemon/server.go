// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dotandev/padesign/internal/journal"
	"github.com/dotandev/padesign/internal/logger"
	"github.com/dotandev/padesign/internal/metrics"
	"github.com/dotandev/padesign/internal/session"
	"github.com/dotandev/padesign/internal/telemetry"
	"github.com/dotandev/padesign/internal/token"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.opentelemetry.io/otel/attribute"
)

// Server is the local JSON-RPC daemon. It never signs: signing needs a PIN
// typed by a person at the machine, so only presence and verification are
// offered.
type Server struct {
	locator   *token.Locator
	watcher   *token.Watcher
	metrics   *metrics.Metrics
	journal   journal.Recorder
	authToken string
	suffix    string
	version   string
}

// Config holds daemon configuration
type Config struct {
	Locator         *token.Locator
	Watcher         *token.Watcher
	Metrics         *metrics.Metrics
	Journal         journal.Recorder
	AuthToken       string
	SignatureSuffix string
	Version         string
}

// TokenStatusArgs is empty; JSON-RPC still needs a params object.
type TokenStatusArgs struct{}

// TokenStatusReply reports token presence
type TokenStatusReply struct {
	State     string    `json:"state"`
	MountPath string    `json:"mount_path,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

type TokenLocateArgs struct{}

type TokenLocateReply struct {
	Found     bool   `json:"found"`
	MountPath string `json:"mount_path,omitempty"`
	KeyPath   string `json:"key_path,omitempty"`
}

// VerifyArgs names files on the daemon's host.
type VerifyArgs struct {
	Document  string `json:"document"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature,omitempty"`
}

type VerifyReply struct {
	Valid         bool   `json:"valid"`
	SignaturePath string `json:"signature_path"`
	Reason        string `json:"reason,omitempty"`
}

// NewServer creates a new JSON-RPC server
func NewServer(config Config) (*Server, error) {
	if config.Locator == nil {
		return nil, fmt.Errorf("daemon needs a token locator")
	}
	if config.Journal == nil {
		config.Journal = journal.Nop{}
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}
	s := &Server{
		locator:   config.Locator,
		watcher:   config.Watcher,
		metrics:   config.Metrics,
		journal:   config.Journal,
		authToken: config.AuthToken,
		suffix:    config.SignatureSuffix,
		version:   config.Version,
	}
	s.locator.OnChange(func(st token.Status) {
		s.metrics.SetTokenPresent(st.State == token.StateFound)
	})
	return s, nil
}

// authenticate validates the authorization token
func (s *Server) authenticate(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}
	auth = strings.TrimPrefix(auth, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(auth), []byte(s.authToken)) == 1
}

// TokenService exposes Token.Status and Token.Locate.
type TokenService struct{ s *Server }

func (t *TokenService) Status(r *http.Request, _ *TokenStatusArgs, reply *TokenStatusReply) error {
	st := t.s.locator.Status()
	*reply = TokenStatusReply{
		State:     st.State.String(),
		MountPath: st.MountPath,
		CheckedAt: st.CheckedAt,
	}
	return nil
}

func (t *TokenService) Locate(r *http.Request, _ *TokenLocateArgs, reply *TokenLocateReply) error {
	ctx, span := telemetry.StartSpan(r.Context(), "rpc_token_locate")
	tok, err := t.s.locator.Locate(ctx)
	telemetry.EndSpan(span, nil)
	if err != nil {
		logger.Logger.Debug("Token.Locate found nothing", "error", err)
		*reply = TokenLocateReply{Found: false}
		return nil
	}
	*reply = TokenLocateReply{Found: true, MountPath: tok.MountPath, KeyPath: tok.KeyPath}
	return nil
}

// SignatureService exposes Signature.Verify.
type SignatureService struct{ s *Server }

func (v *SignatureService) Verify(r *http.Request, args *VerifyArgs, reply *VerifyReply) error {
	ctx, span := telemetry.StartSpan(r.Context(), "rpc_signature_verify",
		attribute.String("document", args.Document))
	defer span.End()

	logger.Logger.Info("Processing Signature.Verify RPC", "document", args.Document)

	if args.Document == "" || args.PublicKey == "" {
		return fmt.Errorf("document and public_key are required")
	}

	sess := session.New(session.Options{
		Journal:         v.s.journal,
		Metrics:         v.s.metrics,
		SignatureSuffix: v.s.suffix,
		ToolVersion:     v.s.version,
	})
	if err := sess.SelectDocument(args.Document); err != nil {
		span.RecordError(err)
		return err
	}
	res, err := sess.Verify(ctx, args.PublicKey, args.Signature)
	if err != nil {
		span.RecordError(err)
		return err
	}

	*reply = VerifyReply{Valid: res.Valid, SignaturePath: res.SignaturePath, Reason: res.Reason}
	return nil
}

// Handler returns the HTTP handler serving /rpc, /health and /metrics.
func (s *Server) Handler() (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")
	server.RegisterAfterFunc(func(info *rpc.RequestInfo) {
		status := "ok"
		if info.Error != nil {
			status = "error"
		}
		s.metrics.ObserveRPC(info.Method, status)
	})

	if err := server.RegisterService(&TokenService{s: s}, "Token"); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}
	if err := server.RegisterService(&SignatureService{s: s}, "Signature"); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", s.requireAuth(server))
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"token":   s.locator.Status().State.String(),
			"version": s.version,
		})
	})
	return mux, nil
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			s.metrics.ObserveRPC("", "unauthorized")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves on addr until ctx is cancelled. The token watcher, if any,
// runs for the same lifetime.
func (s *Server) Start(ctx context.Context, addr string) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.watcher != nil {
		go func() { _ = s.watcher.Run(ctx) }()
	}

	logger.Logger.Info("Starting JSON-RPC server", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Logger.Error("Server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Logger.Info("Shutting down JSON-RPC server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
