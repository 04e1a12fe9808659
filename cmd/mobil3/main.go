// Command mobil3 runs the wallet sign-in flow in the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mobil3/walletauth"
	"github.com/mobil3/walletauth/client"
	"github.com/mobil3/walletauth/internal/config"
	"github.com/mobil3/walletauth/internal/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// The UI owns the terminal, so logs go to a file.
	var out io.Writer = io.Discard
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			log.Fatalf("log file: %v", err)
		}
		defer f.Close()
		out = f
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := &tui.Relay{}
	gw := client.NewGateway(cfg.ClientConfig(),
		client.WithLogger(logger),
		client.WithHTTPOptions(client.WithAuthorizer(&client.LoopbackAuthorizer{
			RedirectURI: cfg.OAuthRedirectURI,
			Open:        relay.OpenURL,
			Logger:      logger,
		})),
	)

	// The app stays usable without the backend; failures surface per action.
	if err := gw.Init(ctx); err != nil {
		logger.Error("wallet client init failed", "err", err)
	}

	providers := cfg.OAuthProviders()
	if b := gw.Instance(); b != nil && b.Name() == "fallback" {
		providers = []string{"google", "apple", "github"}
	}

	ctrl := walletauth.NewController(gw,
		walletauth.WithLogger(logger),
		walletauth.WithObserver(relay.Observe),
		walletauth.WithRedirectURI(cfg.OAuthRedirectURI),
	)

	m := tui.New(ctx, ctrl, tui.Options{
		AppName:   cfg.AppName,
		Providers: providers,
		Wallets:   cfg.ExternalWalletList(),
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	relay.Attach(p)

	if _, err := p.Run(); err != nil {
		log.Fatal("Failed to run TUI:", err)
	}
}
