package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/web_agent/internal/agent"
	"github.com/dgnsrekt/web_agent/internal/api"
	"github.com/dgnsrekt/web_agent/internal/artifact"
	"github.com/dgnsrekt/web_agent/internal/auditlog"
	"github.com/dgnsrekt/web_agent/internal/backend"
	cdpbackend "github.com/dgnsrekt/web_agent/internal/backend/cdp"
	"github.com/dgnsrekt/web_agent/internal/backend/memory"
	"github.com/dgnsrekt/web_agent/internal/browser"
	"github.com/dgnsrekt/web_agent/internal/config"
	"github.com/dgnsrekt/web_agent/internal/dispatch"
	"github.com/dgnsrekt/web_agent/internal/events"
	"github.com/dgnsrekt/web_agent/internal/netutil"
	"github.com/dgnsrekt/web_agent/internal/notify"
	"github.com/dgnsrekt/web_agent/internal/session"
	"github.com/dgnsrekt/web_agent/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("agent config loaded",
		"bind_addr", cfg.BindAddr,
		"backend", cfg.Backend,
		"max_tabs", cfg.MaxTabs,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"artifact_dir", cfg.ArtifactDir,
		"preset_dir", cfg.PresetDir,
		"log_level", cfg.LogLevel,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	var launcher *browser.Launcher
	if cfg.Backend == config.BackendCDP && cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ExecPath:   cfg.BrowserPath,
			Headless:   cfg.Headless,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	var pages backend.Browser
	switch cfg.Backend {
	case config.BackendMemory:
		pages = memory.New()
	default:
		cdpB, err := cdpbackend.New(cdpbackend.Options{
			RemoteURL:   cfg.CDPURL(),
			EvalTimeout: time.Duration(cfg.EvalTimeoutMS) * time.Millisecond,
		})
		if err != nil {
			slog.Error("failed to connect browser backend", "cdp_url", cfg.CDPURL(), "error", err)
			os.Exit(1)
		}
		defer cdpB.Shutdown()
		pages = cdpB
	}

	artifacts, err := artifact.NewStore(cfg.ArtifactDir)
	if err != nil {
		slog.Error("failed to open artifact store", "dir", cfg.ArtifactDir, "error", err)
		os.Exit(1)
	}

	audit := auditlog.NewWriter(cfg.AuditDir, 1024, 100)
	defer func() { _ = audit.Close() }()

	broker := events.NewBroker()
	tabs := session.NewManager(cfg.MaxTabs)

	dispatcher := dispatch.NewDispatcher(tabs, pages, artifacts)
	dispatcher.SetAudit(audit)
	dispatcher.SetEvents(broker)

	presets, err := workflow.LoadDir(cfg.PresetDir)
	if err != nil {
		slog.Error("failed to load workflow presets", "dir", cfg.PresetDir, "error", err)
		os.Exit(1)
	}
	slog.Info("workflow presets loaded", "count", presets.Len())

	runner := workflow.NewRunner(dispatcher)
	runner.SetPresets(presets)
	runner.SetEvents(broker)
	runner.SetAbortOnFailure(cfg.AbortOnFailure)
	dispatcher.BindWorkflow(runner)

	if cfg.NotifyEndpoint != "" {
		go notifyOnWorkflowDone(broker, cfg.NotifyEndpoint)
	}

	svc := agent.NewService(dispatcher, tabs, runner, artifacts, broker)
	h := api.NewServer(svc)

	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("agent listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("agent server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("agent shutdown failed", "error", err)
	}
}

// notifyOnWorkflowDone forwards workflow completions to the configured
// notification endpoint.
func notifyOnWorkflowDone(broker *events.Broker, endpoint string) {
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)

	for evt := range ch {
		if evt.Type != events.TypeWorkflowDone {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := notify.SendWorkflowDone(ctx, nil, endpoint, evt.Status, evt.StepIndex); err != nil {
			slog.Debug("workflow notification failed", "error", err)
		}
		cancel()
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
