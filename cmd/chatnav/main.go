// Command chatnav indexes the user's own messages in AI chat tabs.
//
// Usage:
//
//	chatnav -config chatnav.yaml                      # observe pages from YAML config
//	chatnav -url https://claude.ai/chat/<id>          # quick single-tab observation
//	chatnav -file page.html -page-url <url>           # index a saved page and exit
//	chatnav -db pages.db -add-page <url>              # register a tab in the page table
//
// -http serves the REST API and -mcp serves the MCP tools on stdio.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/idgen"
	"github.com/hazyhaar/chatnav/navigator"
	"github.com/hazyhaar/chatnav/navwatch"
)

type options struct {
	config     string
	url        string
	file       string
	pageURL    string
	db         string
	addPage    string
	removePage string
	http       string
	mcp        bool
	overlay    bool
	format     string
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "path to chatnav.yaml config file")
	flag.StringVar(&o.url, "url", "", "observe a single chat URL")
	flag.StringVar(&o.file, "file", "", "index a saved HTML page and exit")
	flag.StringVar(&o.pageURL, "page-url", "", "URL the saved page was captured from (with -file)")
	flag.StringVar(&o.db, "db", "", "SQLite page table; watched for changes")
	flag.StringVar(&o.addPage, "add-page", "", "add a URL to the page table and exit (with -db)")
	flag.StringVar(&o.removePage, "remove-page", "", "disable a page ID in the page table and exit (with -db)")
	flag.StringVar(&o.http, "http", "", "serve the HTTP API on this address")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools on stdio")
	flag.BoolVar(&o.overlay, "overlay", false, "draw the message sidebar into observed tabs")
	flag.StringVar(&o.format, "format", "json", "output of -file: json or markdown")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("chatnav: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	switch {
	case o.file != "":
		return runFile(ctx, logger, o)
	case o.db != "" && (o.addPage != "" || o.removePage != ""):
		return runPageTable(ctx, o)
	case o.url != "" || o.config != "" || o.db != "":
		return runDaemon(ctx, logger, o)
	}
	fmt.Fprintln(os.Stderr, "usage: chatnav -config <file> | -url <url> | -file <page.html> -page-url <url> | -db <file> [-add-page <url> | -remove-page <id>]")
	os.Exit(2)
	return nil
}

// runFile indexes a saved page. With -http or -mcp it keeps serving the
// result; otherwise it prints it and exits.
func runFile(ctx context.Context, logger *slog.Logger, o options) error {
	if o.pageURL == "" {
		return errors.New("-file needs -page-url to pick the platform")
	}
	f, err := os.Open(o.file)
	if err != nil {
		return err
	}
	tree, err := dom.Parse(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parse %s: %w", o.file, err)
	}

	nav := navigator.New(ctx, navigator.Config{
		Tree:   tree,
		PageID: "file",
		WarmUp: time.Hour,
		Logger: logger,
	})
	reg := navwatch.NewStaticRegistry()
	reg.Add("file", nav)
	defer reg.Close()

	nav.Navigate(o.pageURL)
	if err := nav.ForceRescan(); err != nil {
		return fmt.Errorf("%s is not a conversation view: %w", o.pageURL, err)
	}

	if o.http != "" || o.mcp {
		return serve(ctx, logger, reg, o)
	}

	switch o.format {
	case "markdown", "md":
		md, err := navwatch.Export(nav)
		if err != nil {
			return err
		}
		_, err = os.Stdout.WriteString(md)
		return err
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(nav.Snapshot())
	}
}

func runPageTable(ctx context.Context, o options) error {
	db, err := navwatch.OpenPageDB(o.db)
	if err != nil {
		return err
	}
	defer db.Close()

	if o.removePage != "" {
		return navwatch.DisablePage(ctx, db, o.removePage)
	}
	id := idgen.Prefixed("page_", idgen.Default)()
	if err := navwatch.UpsertPage(ctx, db, navwatch.PageConfig{ID: id, URL: o.addPage}); err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runDaemon(ctx context.Context, logger *slog.Logger, o options) error {
	cfg := &navwatch.Config{}
	if o.config != "" {
		loaded, err := navwatch.LoadConfigFile(o.config)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if o.url != "" {
		cfg.Pages = append(cfg.Pages, navwatch.PageConfig{ID: "page-url", URL: o.url})
	}
	if o.db != "" {
		cfg.DB = o.db
	}
	if o.http != "" {
		cfg.HTTP = o.http
	}
	if o.overlay {
		cfg.Overlay = true
	}

	sinks, err := navwatch.SinksFromConfig(cfg.Sinks, logger)
	if err != nil {
		return err
	}
	// stdout carries the MCP stream in -mcp mode.
	if len(sinks) == 0 && !o.mcp {
		sinks = append(sinks, navwatch.NewStdoutSink(os.Stdout))
	}

	var watchDB func(*navwatch.Watcher)
	if cfg.DB != "" {
		db, err := navwatch.OpenPageDB(cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		pages, err := navwatch.LoadPages(ctx, db)
		if err != nil {
			return err
		}
		cfg.Pages = append(cfg.Pages, pages...)
		watchDB = func(w *navwatch.Watcher) { go w.WatchDB(ctx, db, 2*time.Second) }
	}

	w := navwatch.New(cfg, logger, sinks...)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer w.Stop()
	if watchDB != nil {
		watchDB(w)
	}

	o.http = cfg.HTTP
	if o.http != "" || o.mcp {
		return serve(ctx, logger, w, o)
	}
	<-ctx.Done()
	return nil
}

// serve runs the HTTP API and/or the MCP stdio server until ctx ends.
func serve(ctx context.Context, logger *slog.Logger, reg navwatch.Registry, o options) error {
	ep := navwatch.NewEndpoints(reg, logger)
	errc := make(chan error, 2)

	if o.http != "" {
		srv := &http.Server{Addr: o.http, Handler: navwatch.NewRouter(ep)}
		go func() {
			logger.Info("chatnav: http listening", "addr", o.http)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http: %w", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
	}

	if o.mcp {
		srv := mcp.NewServer(&mcp.Implementation{Name: "chatnav", Version: "0.1.0"}, nil)
		navwatch.RegisterMCP(srv, ep)
		go func() {
			errc <- srv.Run(ctx, &mcp.StdioTransport{})
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}
