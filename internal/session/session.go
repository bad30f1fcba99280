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

// Package session drives the sign and verify workflow for one selected
// document. A Session owns everything that would otherwise be global UI
// state: the document path, the cached token location and the workflow state.
package session

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/journal"
	"github.com/dotandev/padesign/internal/keystore"
	"github.com/dotandev/padesign/internal/keywrap"
	"github.com/dotandev/padesign/internal/logger"
	"github.com/dotandev/padesign/internal/metrics"
	"github.com/dotandev/padesign/internal/signer"
	"github.com/dotandev/padesign/internal/telemetry"
	"github.com/dotandev/padesign/internal/token"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

type State int

const (
	NoDocument State = iota
	DocumentSelected
	Signed
	SignatureRejected
	VerificationAttempted
	Valid
	Invalid
)

func (s State) String() string {
	switch s {
	case NoDocument:
		return "no document"
	case DocumentSelected:
		return "document selected"
	case Signed:
		return "signed"
	case SignatureRejected:
		return "signature rejected"
	case VerificationAttempted:
		return "verification attempted"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "info"
}

// PinPrompter collects the PIN interactively. PromptPIN returns ok=false
// when the user dismissed the prompt. The session wipes the returned buffer.
type PinPrompter interface {
	PromptPIN(ctx context.Context) (pin []byte, ok bool, err error)
	ConfirmRetry(ctx context.Context, message string) (bool, error)
}

// StatusReporter receives user-facing status lines. Implementations must
// not block.
type StatusReporter interface {
	Report(message string, level Level)
}

// TokenSource is satisfied by *token.Locator.
type TokenSource interface {
	Locate(ctx context.Context) (*token.Token, error)
	Revalidate(ctx context.Context, cached *token.Token) (*token.Token, error)
}

const (
	DefaultSignatureSuffix      = ".sig"
	DefaultPinAttemptsPerMinute = 5
)

type Options struct {
	Tokens   TokenSource
	Prompter PinPrompter
	Reporter StatusReporter
	Journal  journal.Recorder
	Metrics  *metrics.Metrics

	SignatureSuffix      string
	PinAttemptsPerMinute int
	ToolVersion          string
}

// Session is safe for use from one goroutine at a time; concurrent calls are
// serialised.
type Session struct {
	mu    sync.Mutex
	opts  Options
	state State

	document string
	cached   *token.Token

	limiter *rate.Limiter
	now     func() time.Time
}

// SignResult describes a completed signature.
type SignResult struct {
	Document      string
	SignaturePath string
	TokenMount    string
	Signature     []byte
}

// VerifyResult describes a verification outcome. Reason is set when Valid is
// false.
type VerifyResult struct {
	Document      string
	SignaturePath string
	Valid         bool
	Reason        string
}

func New(opts Options) *Session {
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.SignatureSuffix == "" {
		opts.SignatureSuffix = DefaultSignatureSuffix
	}
	if opts.PinAttemptsPerMinute <= 0 {
		opts.PinAttemptsPerMinute = DefaultPinAttemptsPerMinute
	}
	n := opts.PinAttemptsPerMinute
	return &Session{
		opts:    opts,
		state:   NoDocument,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n),
		now:     time.Now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Document() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

// SignaturePath returns where the signature of the selected document lives.
func (s *Session) SignaturePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == "" {
		return ""
	}
	return s.document + s.opts.SignatureSuffix
}

// SelectDocument makes path the current document and resets the workflow.
func (s *Session) SelectDocument(path string) error {
	if path == "" {
		return errors.WrapNoDocument("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.WrapIOFailure("resolve "+path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WrapNoDocument(path + " does not exist")
		}
		return errors.WrapIOFailure("stat "+path, err)
	}
	if !info.Mode().IsRegular() {
		return errors.WrapValidationError(path + " is not a regular file")
	}

	s.mu.Lock()
	s.document = abs
	s.state = DocumentSelected
	s.mu.Unlock()

	s.opts.Reporter.Report(fmt.Sprintf("Selected %s (%s)", filepath.Base(abs), humanize.Bytes(uint64(info.Size()))), LevelInfo)
	return nil
}

// Sign signs the selected document with the private key on the token and
// writes the detached signature next to it.
func (s *Session) Sign(ctx context.Context) (*SignResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.document == "" {
		return nil, errors.WrapNoDocument("select a document before signing")
	}
	if s.opts.Tokens == nil || s.opts.Prompter == nil {
		return nil, errors.WrapValidationError("session has no token source or PIN prompter")
	}

	start := s.now()
	ctx, span := telemetry.StartSpan(ctx, "session.sign", attribute.String("document", filepath.Base(s.document)))

	entry := &journal.Entry{Operation: journal.OpSign, Document: s.document, ToolVersion: s.opts.ToolVersion}
	res, err := s.sign(ctx, entry)

	elapsed := s.now().Sub(start)
	entry.DurationMS = elapsed.Milliseconds()
	if err != nil {
		s.state = SignatureRejected
		entry.Outcome = journal.OutcomeRejected
		entry.Error = err.Error()
		s.opts.Reporter.Report(describe(err), LevelError)
		logger.Logger.Warn("Signing failed", "document", s.document, "error", err)
	} else {
		s.state = Signed
		entry.Outcome = journal.OutcomeSigned
		span.SetAttributes(attribute.String("token.mount", res.TokenMount))
		s.opts.Reporter.Report(fmt.Sprintf("Signed %s, signature saved to %s", filepath.Base(res.Document), res.SignaturePath), LevelSuccess)
		logger.Logger.Info("Document signed", "document", res.Document, "signature", res.SignaturePath)
	}
	s.opts.Metrics.ObserveOperation(string(journal.OpSign), string(entry.Outcome), elapsed)
	s.record(ctx, entry)
	telemetry.EndSpan(span, err)
	return res, err
}

func (s *Session) sign(ctx context.Context, entry *journal.Entry) (*SignResult, error) {
	tok, err := s.opts.Tokens.Revalidate(ctx, s.cached)
	if err != nil {
		s.cached = nil
		return nil, err
	}
	s.cached = tok
	entry.TokenMount = tok.MountPath

	rec, err := keystore.ReadWrapped(tok.KeyPath)
	if err != nil {
		return nil, err
	}

	doc, err := os.ReadFile(s.document)
	if err != nil {
		return nil, errors.WrapIOFailure("read document", err)
	}
	digest := sha256.Sum256(doc)
	entry.DocumentSHA256 = hex.EncodeToString(digest[:])
	entry.DocumentSize = int64(len(doc))

	priv, err := s.unlock(ctx, rec)
	if err != nil {
		return nil, err
	}

	rs, err := signer.NewRSASigner(priv)
	if err != nil {
		return nil, err
	}
	defer rs.Destroy()

	sig, err := rs.Sign(doc)
	if err != nil {
		return nil, err
	}

	sigPath := s.document + s.opts.SignatureSuffix
	if err := keystore.WriteFileAtomic(sigPath, sig, 0o644); err != nil {
		return nil, err
	}

	return &SignResult{
		Document:      s.document,
		SignaturePath: sigPath,
		TokenMount:    tok.MountPath,
		Signature:     sig,
	}, nil
}

// unlock asks for the PIN until the key is recovered or the user gives up.
// Every retry is user-driven and passes through the attempt limiter.
func (s *Session) unlock(ctx context.Context, rec *keywrap.Record) (*rsa.PrivateKey, error) {
	for {
		if err := s.throttle(ctx); err != nil {
			return nil, err
		}

		raw, ok, err := s.opts.Prompter.PromptPIN(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.WrapCancelled("PIN entry")
		}

		var retryMsg string
		var failure error

		empty := len(bytes.TrimSpace(raw)) == 0
		pin, perr := keywrap.ParsePINBytes(raw)
		keywrap.WipeBytes(raw)

		if empty {
			retryMsg = "PIN cannot be empty, try again?"
			failure = errors.WrapCancelled("PIN entry")
		} else if perr != nil {
			s.opts.Metrics.ObservePinAttempt("invalid")
			s.opts.Reporter.Report("The PIN must be a positive number", LevelWarning)
			retryMsg = "Invalid PIN, try again?"
			failure = perr
		} else {
			priv, rerr := keywrap.RecoverPrivateKey(rec, &pin)
			if rerr == nil {
				s.opts.Metrics.ObservePinAttempt("accepted")
				return priv, nil
			}
			if !errors.Is(rerr, errors.ErrKeyRecoveryFailed) {
				return nil, rerr
			}
			s.opts.Metrics.ObservePinAttempt("rejected")
			s.opts.Reporter.Report("Wrong PIN or damaged key file", LevelWarning)
			retryMsg = "Wrong PIN, try again?"
			failure = rerr
		}

		again, err := s.opts.Prompter.ConfirmRetry(ctx, retryMsg)
		if err != nil {
			return nil, err
		}
		if !again {
			return nil, failure
		}
	}
}

func (s *Session) throttle(ctx context.Context) error {
	r := s.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	s.opts.Metrics.ObservePinAttempt("throttled")
	s.opts.Reporter.Report(fmt.Sprintf("Too many PIN attempts, wait %s", delay.Round(time.Second)), LevelWarning)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return errors.WrapCancelled("waiting for PIN throttle")
	}
}

// Verify checks the selected document against its detached signature with
// the public key at publicKeyPath. signaturePath may be empty to use the
// default location. A missing signature file is an Invalid outcome, not an
// error.
func (s *Session) Verify(ctx context.Context, publicKeyPath, signaturePath string) (*VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.document == "" {
		return nil, errors.WrapNoDocument("select a document before verifying")
	}
	if signaturePath == "" {
		signaturePath = s.document + s.opts.SignatureSuffix
	}

	start := s.now()
	ctx, span := telemetry.StartSpan(ctx, "session.verify", attribute.String("document", filepath.Base(s.document)))
	s.state = VerificationAttempted

	entry := &journal.Entry{Operation: journal.OpVerify, Document: s.document, ToolVersion: s.opts.ToolVersion}
	res, err := s.verify(publicKeyPath, signaturePath, entry)

	elapsed := s.now().Sub(start)
	entry.DurationMS = elapsed.Milliseconds()
	switch {
	case err != nil:
		s.state = Invalid
		entry.Outcome = journal.OutcomeFailed
		entry.Error = err.Error()
		s.opts.Reporter.Report(describe(err), LevelError)
	case res.Valid:
		s.state = Valid
		entry.Outcome = journal.OutcomeValid
		s.opts.Reporter.Report(fmt.Sprintf("Signature of %s is valid", filepath.Base(s.document)), LevelSuccess)
	default:
		s.state = Invalid
		entry.Outcome = journal.OutcomeInvalid
		entry.Error = res.Reason
		s.opts.Reporter.Report(fmt.Sprintf("Signature of %s is NOT valid: %s", filepath.Base(s.document), res.Reason), LevelError)
	}
	s.opts.Metrics.ObserveOperation(string(journal.OpVerify), string(entry.Outcome), elapsed)
	s.record(ctx, entry)
	span.SetAttributes(attribute.Bool("signature.valid", res != nil && res.Valid))
	telemetry.EndSpan(span, err)
	return res, err
}

func (s *Session) verify(publicKeyPath, signaturePath string, entry *journal.Entry) (*VerifyResult, error) {
	pubPEM, err := keystore.ReadPublic(publicKeyPath)
	if err != nil {
		return nil, err
	}
	pub, err := signer.ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, err
	}

	doc, err := os.ReadFile(s.document)
	if err != nil {
		return nil, errors.WrapIOFailure("read document", err)
	}
	digest := sha256.Sum256(doc)
	entry.DocumentSHA256 = hex.EncodeToString(digest[:])
	entry.DocumentSize = int64(len(doc))

	res := &VerifyResult{Document: s.document, SignaturePath: signaturePath}

	sig, err := os.ReadFile(signaturePath)
	if err != nil {
		res.Reason = "signature file " + filepath.Base(signaturePath) + " cannot be read"
		logger.Logger.Debug("Signature unreadable", "path", signaturePath, "error", err)
		return res, nil
	}

	if err := signer.VerifySignature(pub, doc, sig); err != nil {
		res.Reason = "signature does not match document and public key"
		return res, nil
	}
	res.Valid = true
	return res, nil
}

func (s *Session) record(ctx context.Context, e *journal.Entry) {
	if err := s.opts.Journal.Record(ctx, e); err != nil {
		logger.Logger.Warn("Failed to record operation", "error", err)
	}
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, errors.ErrTokenNotFound):
		return "No token found. Insert the USB key and try again."
	case errors.Is(err, errors.ErrKeyFileNotFound):
		return "The token does not hold a private key file."
	case errors.Is(err, errors.ErrKeyFileCorrupt), errors.Is(err, errors.ErrUnsupportedFormat):
		return "The key file on the token is damaged or from an unsupported version."
	case errors.Is(err, errors.ErrKeyRecoveryFailed):
		return "Could not unlock the private key. The PIN is wrong or the key file is damaged."
	case errors.Is(err, errors.ErrInvalidPin):
		return "The PIN must be a positive number."
	case errors.Is(err, errors.ErrCancelled):
		return "Signing cancelled."
	case errors.Is(err, errors.ErrInvalidSignature):
		return "The signature is not valid."
	}
	return err.Error()
}

type nopReporter struct{}

func (nopReporter) Report(string, Level) {}
