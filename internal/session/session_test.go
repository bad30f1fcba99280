// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/journal"
	"github.com/dotandev/padesign/internal/keystore"
	"github.com/dotandev/padesign/internal/keywrap"
	"github.com/dotandev/padesign/internal/metrics"
	"github.com/dotandev/padesign/internal/signer"
	"github.com/dotandev/padesign/internal/token"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var testKey = func() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return k
}()

type scriptedPrompter struct {
	pins     []string
	retries  []bool
	asked    []string
	prompted int
	handed   [][]byte
}

func (p *scriptedPrompter) PromptPIN(ctx context.Context) ([]byte, bool, error) {
	if p.prompted >= len(p.pins) {
		return nil, false, nil
	}
	pin := []byte(p.pins[p.prompted])
	p.prompted++
	p.handed = append(p.handed, pin)
	return pin, true, nil
}

func (p *scriptedPrompter) ConfirmRetry(ctx context.Context, message string) (bool, error) {
	p.asked = append(p.asked, message)
	if len(p.retries) == 0 {
		return false, nil
	}
	r := p.retries[0]
	p.retries = p.retries[1:]
	return r, nil
}

type line struct {
	msg   string
	level Level
}

type recordingReporter struct {
	mu    sync.Mutex
	lines []line
}

func (r *recordingReporter) Report(msg string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line{msg, level})
}

func (r *recordingReporter) last() line {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return line{}
	}
	return r.lines[len(r.lines)-1]
}

func (r *recordingReporter) contains(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l.msg, sub) {
			return true
		}
	}
	return false
}

type memJournal struct {
	entries []journal.Entry
}

func (m *memJournal) Record(ctx context.Context, e *journal.Entry) error {
	m.entries = append(m.entries, *e)
	return nil
}

type fixture struct {
	usb       string
	document  string
	publicKey string
	reporter  *recordingReporter
	journal   *memJournal
	metrics   *metrics.Metrics
	locator   *token.Locator
}

func newFixture(t *testing.T, pin int64) *fixture {
	t.Helper()
	base := t.TempDir()
	usb := filepath.Join(base, "usb")
	docs := filepath.Join(base, "docs")
	require.NoError(t, os.MkdirAll(usb, 0o755))
	require.NoError(t, os.MkdirAll(docs, 0o755))

	p, err := keywrap.PINFromInt(pin)
	require.NoError(t, err)
	rec, err := keywrap.WrapPrivateKey(signer.MarshalPrivateKeyPEM(testKey), p)
	require.NoError(t, err)
	require.NoError(t, keystore.WriteWrapped(filepath.Join(usb, keystore.DefaultWrappedKeyName), rec))

	pubPEM, err := signer.MarshalPublicKeyPEM(&testKey.PublicKey)
	require.NoError(t, err)
	pubPath := filepath.Join(docs, keystore.DefaultPublicKeyName)
	require.NoError(t, keystore.WritePublic(pubPath, pubPEM))

	doc := filepath.Join(docs, "contract.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF-1.7\nhello world\n%%EOF\n"), 0o644))

	return &fixture{
		usb:       usb,
		document:  doc,
		publicKey: pubPath,
		reporter:  &recordingReporter{},
		journal:   &memJournal{},
		metrics:   metrics.New(),
		locator:   token.NewLocator(token.StaticEnumerator{usb}, token.Config{}),
	}
}

func (f *fixture) session(p PinPrompter) *Session {
	return New(Options{
		Tokens:               f.locator,
		Prompter:             p,
		Reporter:             f.reporter,
		Journal:              f.journal,
		Metrics:              f.metrics,
		PinAttemptsPerMinute: 100,
		ToolVersion:          "test",
	})
}

func TestSignAndVerify(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{pins: []string{"1234"}})
	assert.Equal(t, NoDocument, s.State())

	require.NoError(t, s.SelectDocument(f.document))
	assert.Equal(t, DocumentSelected, s.State())
	assert.Equal(t, f.document+".sig", s.SignaturePath())

	res, err := s.Sign(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Signed, s.State())
	assert.Equal(t, f.document+".sig", res.SignaturePath)
	assert.Equal(t, filepath.Clean(f.usb), res.TokenMount)
	assert.Equal(t, LevelSuccess, f.reporter.last().level)

	onDisk, err := os.ReadFile(res.SignaturePath)
	require.NoError(t, err)
	assert.Equal(t, res.Signature, onDisk)

	vres, err := s.Verify(context.Background(), f.publicKey, "")
	require.NoError(t, err)
	assert.True(t, vres.Valid)
	assert.Equal(t, Valid, s.State())

	require.Len(t, f.journal.entries, 2)
	assert.Equal(t, journal.OutcomeSigned, f.journal.entries[0].Outcome)
	assert.Equal(t, filepath.Clean(f.usb), f.journal.entries[0].TokenMount)
	assert.Len(t, f.journal.entries[0].DocumentSHA256, 64)
	assert.Equal(t, journal.OutcomeValid, f.journal.entries[1].Outcome)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("sign", "signed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PinAttempts.WithLabelValues("accepted")))
}

func TestSignIsDeterministicAcrossSessions(t *testing.T) {
	f := newFixture(t, 42)

	var sigs [][]byte
	for i := 0; i < 2; i++ {
		s := f.session(&scriptedPrompter{pins: []string{"42"}})
		require.NoError(t, s.SelectDocument(f.document))
		res, err := s.Sign(context.Background())
		require.NoError(t, err)
		sigs = append(sigs, res.Signature)
	}
	assert.Equal(t, sigs[0], sigs[1])
}

func TestSignWithoutDocument(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{pins: []string{"1234"}})

	_, err := s.Sign(context.Background())
	assert.ErrorIs(t, err, errors.ErrNoDocument)
	assert.Equal(t, NoDocument, s.State())

	_, err = s.Verify(context.Background(), f.publicKey, "")
	assert.ErrorIs(t, err, errors.ErrNoDocument)
}

func TestSelectDocumentErrors(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{})

	assert.ErrorIs(t, s.SelectDocument(""), errors.ErrNoDocument)
	assert.ErrorIs(t, s.SelectDocument(filepath.Join(t.TempDir(), "missing.pdf")), errors.ErrNoDocument)
	assert.ErrorIs(t, s.SelectDocument(t.TempDir()), errors.ErrValidation)
	assert.Equal(t, NoDocument, s.State())
}

func TestWrongPINThenRetry(t *testing.T) {
	f := newFixture(t, 1234)
	p := &scriptedPrompter{pins: []string{"4321", "1234"}, retries: []bool{true}}
	s := f.session(p)
	require.NoError(t, s.SelectDocument(f.document))

	_, err := s.Sign(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Signed, s.State())
	assert.Equal(t, []string{"Wrong PIN, try again?"}, p.asked)
	assert.True(t, f.reporter.contains("Wrong PIN"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PinAttempts.WithLabelValues("rejected")))
}

func TestPromptedPINBuffersAreWiped(t *testing.T) {
	f := newFixture(t, 1234)
	p := &scriptedPrompter{pins: []string{"abc", "4321", "1234"}, retries: []bool{true, true}}
	s := f.session(p)
	require.NoError(t, s.SelectDocument(f.document))

	_, err := s.Sign(context.Background())
	require.NoError(t, err)
	require.Len(t, p.handed, 3)
	for i, buf := range p.handed {
		assert.Equal(t, make([]byte, len(buf)), buf, "prompt %d", i)
	}
}

func TestWrongPINGivesUp(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{pins: []string{"1111"}, retries: []bool{false}})
	require.NoError(t, s.SelectDocument(f.document))

	_, err := s.Sign(context.Background())
	assert.Equal(t, errors.ErrKeyRecoveryFailed, err)
	assert.Equal(t, SignatureRejected, s.State())
	assert.Equal(t, LevelError, f.reporter.last().level)

	_, statErr := os.Stat(f.document + ".sig")
	assert.True(t, os.IsNotExist(statErr), "no signature may be written on failure")

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, journal.OutcomeRejected, f.journal.entries[0].Outcome)
}

func TestEmptyPINAsksToRetry(t *testing.T) {
	f := newFixture(t, 1234)
	p := &scriptedPrompter{pins: []string{"  "}, retries: []bool{false}}
	s := f.session(p)
	require.NoError(t, s.SelectDocument(f.document))

	_, err := s.Sign(context.Background())
	assert.ErrorIs(t, err, errors.ErrCancelled)
	assert.Equal(t, []string{"PIN cannot be empty, try again?"}, p.asked)
	assert.Equal(t, SignatureRejected, s.State())
}

func TestNonNumericPINThenValid(t *testing.T) {
	f := newFixture(t, 77)
	p := &scriptedPrompter{pins: []string{"abc", "0077"}, retries: []bool{true}}
	s := f.session(p)
	require.NoError(t, s.SelectDocument(f.document))

	_, err := s.Sign(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Invalid PIN, try again?"}, p.asked)
}

func TestPromptDismissed(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{})
	require.NoError(t, s.SelectDocument(f.document))

	_, err := s.Sign(context.Background())
	assert.ErrorIs(t, err, errors.ErrCancelled)
	assert.Equal(t, SignatureRejected, s.State())
}

func TestSignWithoutToken(t *testing.T) {
	f := newFixture(t, 1234)
	p := &scriptedPrompter{pins: []string{"1234"}}
	s := New(Options{
		Tokens:   token.NewLocator(token.StaticEnumerator{}, token.Config{}),
		Prompter: p,
		Reporter: f.reporter,
	})
	require.NoError(t, s.SelectDocument(f.document))

	_, err := s.Sign(context.Background())
	assert.ErrorIs(t, err, errors.ErrTokenNotFound)
	assert.Equal(t, SignatureRejected, s.State())
	assert.Zero(t, p.prompted, "PIN must not be requested without a token")
	assert.True(t, f.reporter.contains("No token found"))
}

func TestSignCorruptKeyFile(t *testing.T) {
	f := newFixture(t, 1234)
	require.NoError(t, os.WriteFile(filepath.Join(f.usb, keystore.DefaultWrappedKeyName), []byte("short"), 0o600))
	s := f.session(&scriptedPrompter{pins: []string{"1234"}})
	require.NoError(t, s.SelectDocument(f.document))

	_, err := s.Sign(context.Background())
	assert.ErrorIs(t, err, errors.ErrKeyFileCorrupt)
}

func TestPINAttemptsAreThrottled(t *testing.T) {
	f := newFixture(t, 1234)
	p := &scriptedPrompter{pins: []string{"9", "1234"}, retries: []bool{true}}
	s := New(Options{
		Tokens:               f.locator,
		Prompter:             p,
		Reporter:             f.reporter,
		Metrics:              f.metrics,
		PinAttemptsPerMinute: 1,
	})
	require.NoError(t, s.SelectDocument(f.document))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Sign(ctx)
	assert.ErrorIs(t, err, errors.ErrCancelled)
	assert.Equal(t, 1, p.prompted)
	assert.True(t, f.reporter.contains("Too many PIN attempts"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PinAttempts.WithLabelValues("throttled")))
}

func TestVerifyTamperedDocument(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{pins: []string{"1234"}})
	require.NoError(t, s.SelectDocument(f.document))
	_, err := s.Sign(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(f.document, []byte("%PDF-1.7\nhello world!\n%%EOF\n"), 0o644))

	res, err := s.Verify(context.Background(), f.publicKey, "")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, Invalid, s.State())
	assert.Equal(t, journal.OutcomeInvalid, f.journal.entries[len(f.journal.entries)-1].Outcome)
}

func TestVerifyMissingSignatureIsInvalid(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{})
	require.NoError(t, s.SelectDocument(f.document))

	res, err := s.Verify(context.Background(), f.publicKey, "")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "contract.pdf.sig")
	assert.Equal(t, Invalid, s.State())
}

func TestVerifyWithOtherKeyIsInvalid(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{pins: []string{"1234"}})
	require.NoError(t, s.SelectDocument(f.document))
	_, err := s.Sign(context.Background())
	require.NoError(t, err)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherPEM, err := signer.MarshalPublicKeyPEM(&other.PublicKey)
	require.NoError(t, err)
	otherPath := filepath.Join(t.TempDir(), "other.key")
	require.NoError(t, os.WriteFile(otherPath, otherPEM, 0o644))

	res, err := s.Verify(context.Background(), otherPath, "")
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestVerifyBadPublicKey(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{})
	require.NoError(t, s.SelectDocument(f.document))

	bad := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o644))

	_, err := s.Verify(context.Background(), bad, "")
	require.Error(t, err)
	assert.Equal(t, Invalid, s.State())

	_, err = s.Verify(context.Background(), filepath.Join(t.TempDir(), "none.key"), "")
	assert.ErrorIs(t, err, errors.ErrKeyFileNotFound)
}

func TestSelectingNewDocumentResetsState(t *testing.T) {
	f := newFixture(t, 1234)
	s := f.session(&scriptedPrompter{pins: []string{"1234"}})
	require.NoError(t, s.SelectDocument(f.document))
	_, err := s.Sign(context.Background())
	require.NoError(t, err)
	require.Equal(t, Signed, s.State())

	other := filepath.Join(filepath.Dir(f.document), "other.pdf")
	require.NoError(t, os.WriteFile(other, []byte("%PDF"), 0o644))
	require.NoError(t, s.SelectDocument(other))
	assert.Equal(t, DocumentSelected, s.State())
	assert.Equal(t, other, s.Document())
}

func TestSignSpanDoesNotCarrySecrets(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	f := newFixture(t, 86420)
	s := f.session(&scriptedPrompter{pins: []string{"86420"}})
	require.NoError(t, s.SelectDocument(f.document))
	_, err := s.Sign(context.Background())
	require.NoError(t, err)

	spans := rec.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "session.sign", spans[len(spans)-1].Name())
	for _, sp := range spans {
		for _, kv := range sp.Attributes() {
			assert.NotContains(t, kv.Value.Emit(), "86420")
		}
	}
}

func TestStateAndLevelStrings(t *testing.T) {
	assert.Equal(t, "signature rejected", SignatureRejected.String())
	assert.Equal(t, "state(99)", State(99).String())
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "info", LevelInfo.String())
}
