// ABOUTME: Interactive CLI for talking to a coven gateway through the bridge client.
// ABOUTME: Readline-style input, slash commands, connectivity notices, paged output.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-bridge/internal/auth"
	"github.com/2389/coven-bridge/internal/bridge"
	"github.com/2389/coven-bridge/internal/config"
	"github.com/2389/coven-bridge/internal/dedupe"
	"github.com/2389/coven-bridge/internal/history"
	"github.com/2389/coven-bridge/internal/pager"
)

var version = "dev"

const banner = `
                                     _          _     _
   ___ _____   _____ _ __        ___| |__  _ __(_) __| | __ _  ___
  / __/ _ \ \ / / _ \ '_ \ _____| '_ \| '__| |/ _` + "`" + ` |/ _` + "`" + ` |/ _ \
 | (_| (_) \ V /  __/ | | |_____| |_) | |  | | (_| | (_| |  __/
  \___\___/ \_/ \___|_| |_|     |_.__/|_|  |_|\__,_|\__, |\___|
                                                    |___/
`

const (
	seenCacheTTL     = 5 * time.Minute
	seenCacheEntries = 1024
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context) error {
	configPath := config.DefaultPath()
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	token := resolveToken(cfg, logger)

	var dialect bridge.Dialect
	if cfg.Gateway.Protocol == "legacy" {
		dialect = bridge.NewLegacyDialect()
	} else {
		dialect = bridge.NewGatewayDialect(bridge.GatewayDialectConfig{
			ClientID: "coven-bridge",
			Version:  version,
			Scopes:   []string{"chat"},
			Token:    token,
		})
	}

	opts := bridge.Options{
		ResolveURL:  cfg.ResolveURL,
		Dialect:     dialect,
		ChannelID:   cfg.Gateway.ChannelID,
		AccountID:   cfg.Gateway.AccountID,
		Seen:        dedupe.New(seenCacheTTL, seenCacheEntries),
		DialTimeout: cfg.DialTimeout(),
		Logger:      logger.With("component", "bridge"),
		OnEvent: func(ev bridge.Event) {
			logger.Debug("gateway event", "event", ev.Name)
		},
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer store.Close()
		opts.Recorder = store
	}

	client, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}
	defer client.Disconnect()

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Gateway:  %s\n", cfg.ResolveURL())
	green.Print("    ▶ ")
	fmt.Printf("Protocol: %s\n\n", dialect.Name())
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	watchConnectivity(ctx, client)

	return repl(ctx, client, store)
}

// resolveToken loads the auth token and warns when a JWT-shaped token has
// already expired. A missing token means an anonymous connection.
func resolveToken(cfg *config.Config, logger *slog.Logger) string {
	token, err := auth.NewTokenSource(cfg.Auth.Token, cfg.Auth.TokenFile).Token()
	if err != nil {
		if !errors.Is(err, auth.ErrNoToken) {
			logger.Warn("resolving auth token failed", "error", err)
		}
		return ""
	}

	info, err := auth.Inspect(token)
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		logger.Warn("auth token is expired, the gateway will likely reject the handshake",
			"subject", info.Subject,
			"expired_at", info.ExpiresAt,
		)
	case err == nil:
		logger.Debug("auth token loaded", "subject", info.Subject)
	}
	return token
}

// watchConnectivity prints a notice on every connectivity transition.
func watchConnectivity(ctx context.Context, client *bridge.Client) {
	updates, cancel := client.SubscribeConnectivity()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case connected, ok := <-updates:
				if !ok {
					return
				}
				if connected {
					color.Green("[gateway] online")
				} else {
					color.Yellow("[gateway] offline")
				}
			}
		}
	}()
}

func repl(ctx context.Context, client *bridge.Client, store *history.Store) error {
	scanner := bufio.NewScanner(os.Stdin)
	var last *bridge.Response

	for {
		fmt.Print("> ")

		input, err := readLine(ctx, scanner)
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := command(ctx, client, store, last, input); quit {
				return nil
			}
			continue
		}

		resp := client.SendMessage(ctx, input)
		if resp == nil {
			color.Red("[no answer]")
			continue
		}
		last = resp
		printResponse(resp)
	}
}

// readLine reads one line without blocking signal-driven shutdown.
func readLine(ctx context.Context, scanner *bufio.Scanner) (string, error) {
	inputCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		if scanner.Scan() {
			inputCh <- scanner.Text()
		} else if err := scanner.Err(); err != nil {
			errCh <- err
		} else {
			errCh <- io.EOF
		}
	}()

	select {
	case <-ctx.Done():
		return "", io.EOF
	case err := <-errCh:
		return "", err
	case input := <-inputCh:
		return input, nil
	}
}

// command handles a slash command; returns true on quit.
func command(ctx context.Context, client *bridge.Client, store *history.Store, last *bridge.Response, input string) bool {
	cmd, args, _ := strings.Cut(input, " ")

	switch cmd {
	case "/quit", "/exit", "/q":
		return true

	case "/connect":
		if client.Connect(ctx) {
			fmt.Println("connected")
		} else {
			color.Red("connect failed")
		}

	case "/disconnect":
		client.Disconnect()
		fmt.Println("disconnected")

	case "/status":
		if client.IsConnected() {
			color.Green("connected")
		} else {
			color.Yellow("disconnected")
		}

	case "/history":
		showHistory(ctx, store, args)

	case "/page":
		showPage(last, args)

	case "/help":
		fmt.Println("commands: /connect /disconnect /status /history [n] /page <n> /quit")

	default:
		fmt.Printf("unknown command: %s (/help for commands)\n", cmd)
	}
	return false
}

func showHistory(ctx context.Context, store *history.Store, args string) {
	if store == nil {
		fmt.Println("history is disabled (enable it in the config file)")
		return
	}

	limit := 10
	if args = strings.TrimSpace(args); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 {
			fmt.Println("usage: /history [n]")
			return
		}
		limit = n
	}

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		color.Red("[error] %v", err)
		return
	}

	gray := color.New(color.FgHiBlack)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		marker := "<"
		if e.Direction == bridge.DirectionOutbound {
			marker = ">"
		}
		gray.Printf("%s %s ", e.At.Local().Format("15:04:05"), marker)
		fmt.Println(e.Text)
	}
}

// showPage reprints one page of the most recent response.
func showPage(last *bridge.Response, args string) {
	if last == nil {
		fmt.Println("no response to page through yet")
		return
	}
	pages := responsePages(last)
	if len(pages) == 0 {
		fmt.Println("the last response had no pages")
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 || n > len(pages) {
		fmt.Printf("usage: /page <1..%d>\n", len(pages))
		return
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("-- page %d/%d --\n", n, len(pages))
	fmt.Println(pages[n-1])
}

// responsePages re-paginates a single oversized page at markdown block
// boundaries; multi-page replies keep the gateway's pagination.
func responsePages(resp *bridge.Response) []string {
	pages := resp.Pages
	if len(pages) == 1 && len(pages[0]) > pager.DefaultPageSize {
		pages = pager.Split(pages[0], pager.DefaultPageSize)
	}
	return pages
}

// printResponse writes the reply, page by page.
func printResponse(resp *bridge.Response) {
	pages := responsePages(resp)

	gray := color.New(color.FgHiBlack)
	for i, page := range pages {
		if len(pages) > 1 {
			gray.Printf("-- page %d/%d --\n", i+1, len(pages))
		}
		fmt.Println(page)
	}
	fmt.Println()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level: h.level,
		attrs: newAttrs,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return h
}
