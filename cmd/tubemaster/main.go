// Command tubemaster drives YouTube Studio's video editor in a Chrome tab
// and adds title, description and thumbnail assistance to it.
//
// Usage:
//
//	tubemaster -config tubemaster.yaml         # attach to Studio, serve the control API
//	tubemaster -mcp                            # same, plus MCP tools on stdio
//	tubemaster -token <account token>          # store the account token and exit
//	tubemaster -signout                        # clear the account token and exit
//	tubemaster -control-token write            # print a control API token and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tubemaster/studio"
)

func main() {
	configPath := flag.String("config", "", "path to tubemaster.yaml config file")
	dbPath := flag.String("db", "", "state database path (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	pageURL := flag.String("url", "", "studio URL to open (overrides config)")
	remote := flag.String("remote", "", "DevTools URL of an existing Chrome (overrides config)")
	token := flag.String("token", "", "store an account token and exit")
	signOut := flag.Bool("signout", false, "clear the account token and exit")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdin/stdout")
	controlScope := flag.String("control-token", "", "print a control API token with scope read or write and exit")
	controlTTL := flag.Duration("control-ttl", 30*24*time.Hour, "lifetime of -control-token")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("tubemaster: config", "error", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DB.Path = *dbPath
	}
	if *pageURL != "" {
		cfg.Studio.URL = *pageURL
	}
	if *remote != "" {
		cfg.Browser.Remote = *remote
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := studio.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("tubemaster: open", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	switch {
	case *controlScope != "":
		tok, err := eng.MintControlToken("cli", *controlScope, *controlTTL)
		if err != nil {
			logger.Error("tubemaster: control token", "error", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	case *token != "":
		snap, err := eng.StoreToken(ctx, *token)
		if err != nil {
			logger.Error("tubemaster: store token", "error", err)
			os.Exit(1)
		}
		logger.Info("tubemaster: token stored", "authenticated", snap.Authenticated, "email", snap.Email)
		return
	case *signOut:
		if err := eng.SignOut(ctx); err != nil {
			logger.Error("tubemaster: sign out", "error", err)
			os.Exit(1)
		}
		logger.Info("tubemaster: signed out")
		return
	}

	if err := run(ctx, logger, eng, *serveMCP); err != nil {
		logger.Error("tubemaster: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*studio.Config, error) {
	if path == "" {
		return studio.DefaultConfig(), nil
	}
	return studio.LoadConfigFile(path)
}

// run attaches to Studio until ctx ends. The control server and the MCP
// session run alongside; the first failure stops everything.
func run(ctx context.Context, logger *slog.Logger, eng *studio.Engine, serveMCP bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 3)
	go func() { errc <- eng.ServeControl(ctx) }()
	if serveMCP {
		go func() {
			err := eng.NewMCPServer().Run(ctx, &mcp.StdioTransport{})
			if err == nil {
				// stdin closed: the client is gone.
				logger.Info("tubemaster: mcp session ended")
				cancel()
			}
			errc <- err
		}()
	}
	go func() { errc <- eng.Run(ctx) }()

	pending := 2
	if serveMCP {
		pending++
	}
	var first error
	for ; pending > 0; pending-- {
		err := <-errc
		if err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
			cancel()
		}
	}
	return first
}
