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

package cmd

import (
	"fmt"

	"github.com/dotandev/padesign/internal/daemon"
	"github.com/dotandev/padesign/internal/metrics"
	"github.com/dotandev/padesign/internal/token"
	"github.com/spf13/cobra"
)

var (
	daemonAddrFlag      string
	daemonAuthTokenFlag string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start a local JSON-RPC server for token status and verification",
	Long: `Start a JSON-RPC 2.0 server so editors and document viewers can query the
token and verify signatures without shelling out.

Endpoints:
  POST /rpc      Token.Status, Token.Locate, Signature.Verify
  GET  /health   liveness and token state
  GET  /metrics  Prometheus metrics

Signing is not exposed: it needs the PIN, which is only ever typed into
the CLI.`,
	Example: `  padesign daemon
  padesign daemon --addr 127.0.0.1:9000 --auth-token secret123`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig

		addr := cfg.Daemon.Addr
		if daemonAddrFlag != "" {
			addr = daemonAddrFlag
		}
		authToken := cfg.Daemon.AuthToken
		if daemonAuthTokenFlag != "" {
			authToken = daemonAuthTokenFlag
		}

		recorder, closeJournal := openRecorder(cfg)
		defer closeJournal()

		locator := newLocator(cfg)
		server, err := daemon.NewServer(daemon.Config{
			Locator:         locator,
			Watcher:         token.NewWatcher(locator, cfg.Token.PollInterval, cfg.Token.WatchRoots),
			Metrics:         metrics.New(),
			Journal:         recorder,
			AuthToken:       authToken,
			SignatureSuffix: cfg.SignatureSuffix,
			Version:         Version,
		})
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Starting padesign daemon on %s\n", addr)
		if authToken != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "Authentication: enabled")
		}

		return server.Start(ctx, addr)
	},
}

func init() {
	daemonCmd.Flags().StringVar(&daemonAddrFlag, "addr", "", "Address to listen on (default from config, 127.0.0.1:8765)")
	daemonCmd.Flags().StringVar(&daemonAuthTokenFlag, "auth-token", "", "Bearer token required on /rpc")

	rootCmd.AddCommand(daemonCmd)
}
