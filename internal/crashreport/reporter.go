// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

// Package crashreport sends opt-in panic reports.
//
// Two sinks are supported and may be used together: Sentry, through the
// official SDK, and a custom HTTPS endpoint that receives a JSON Report.
// Both are off unless crash.enabled is set and a sink is configured. A report
// carries the panic message with file paths masked, the stack, the platform
// and the padesign version. PINs and key material never reach an error
// message, so they cannot reach a report either.
package crashreport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
)

const defaultTimeout = 5 * time.Second

// Report is the JSON payload delivered to the custom endpoint.
type Report struct {
	Version      string `json:"version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	GoVersion    string `json:"go_version"`
	CrashTime    string `json:"crash_time"`
	ErrorMessage string `json:"error_message"`
	StackTrace   string `json:"stack_trace,omitempty"`
	// Command is the cobra command path, e.g. "padesign sign".
	Command string `json:"command,omitempty"`
}

type Config struct {
	Enabled   bool
	SentryDSN string
	Endpoint  string
	Version   string
}

// Reporter dispatches crash reports to all configured sinks.
type Reporter struct {
	cfg          Config
	client       *http.Client
	sentryActive bool
}

// New creates a Reporter, initialising Sentry when a DSN is set and
// reporting is enabled.
func New(cfg Config) *Reporter {
	r := &Reporter{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultTimeout},
	}

	if cfg.Enabled && cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: "padesign@" + cfg.Version,
		}); err == nil {
			r.sentryActive = true
		}
	}
	return r
}

// IsEnabled reports whether a report would be sent anywhere.
func (r *Reporter) IsEnabled() bool {
	return r.cfg.Enabled && (r.sentryActive || r.cfg.Endpoint != "")
}

// Send builds a Report from err and stack and hands it to every active sink.
// Sink errors are joined; on a crash path they are informational only.
func (r *Reporter) Send(ctx context.Context, err error, stack []byte, command string) error {
	if !r.IsEnabled() {
		return nil
	}

	report := r.buildReport(err, stack, command)

	var errs []error
	if r.sentryActive {
		r.sendToSentry(report)
	}
	if r.cfg.Endpoint != "" {
		if sendErr := r.sendToEndpoint(ctx, report); sendErr != nil {
			errs = append(errs, sendErr)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("crashreport: %w", err)
	}
	return nil
}

func (r *Reporter) sendToSentry(report Report) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("os", report.OS)
		scope.SetTag("arch", report.Arch)
		scope.SetTag("go_version", report.GoVersion)
		scope.SetTag("command", report.Command)
		scope.SetExtra("stack_trace", report.StackTrace)

		sentry.CaptureMessage(report.ErrorMessage)
	})
	sentry.Flush(defaultTimeout)
}

func (r *Reporter) sendToEndpoint(ctx context.Context, report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "padesign/"+r.cfg.Version)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}

// pathPattern matches absolute Unix and Windows paths inside messages.
var pathPattern = regexp.MustCompile(`(?:[A-Za-z]:\\|/)[^\s:"']+`)

// scrub masks file paths, which may name the user or their documents.
func scrub(msg string) string {
	return pathPattern.ReplaceAllString(msg, "<path>")
}

func (r *Reporter) buildReport(err error, stack []byte, command string) Report {
	errMsg := ""
	if err != nil {
		errMsg = scrub(err.Error())
	}

	goVersion := "unknown"
	if bi, ok := debug.ReadBuildInfo(); ok {
		goVersion = bi.GoVersion
	}

	return Report{
		Version:      r.cfg.Version,
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		GoVersion:    goVersion,
		CrashTime:    time.Now().UTC().Format(time.RFC3339),
		ErrorMessage: errMsg,
		StackTrace:   string(stack),
		Command:      command,
	}
}

// HandlePanic is deferred at the top of main. If a panic is in flight it
// sends a report and re-panics so the process still exits non-zero.
func (r *Reporter) HandlePanic(ctx context.Context, command string) {
	v := recover()
	if v == nil {
		return
	}

	stack := debug.Stack()

	var panicErr error
	switch e := v.(type) {
	case error:
		panicErr = e
	default:
		panicErr = fmt.Errorf("%v", e)
	}

	_ = r.Send(ctx, panicErr, stack, command)
	panic(v)
}
