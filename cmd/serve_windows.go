//go:build windows

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Norgate-AV/passthru/internal/config"
	"github.com/Norgate-AV/passthru/internal/hook"
	"github.com/Norgate-AV/passthru/internal/inject"
	"github.com/Norgate-AV/passthru/internal/ipc"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/overlay"
	"github.com/Norgate-AV/passthru/internal/remote"
	"github.com/Norgate-AV/passthru/internal/timeouts"
	"github.com/Norgate-AV/passthru/internal/version"
	"github.com/Norgate-AV/passthru/internal/windows"
)

// runServe builds the daemon, serves the control pipe until interrupted and
// tears everything down in reverse order of construction.
func runServe(cfg *Config) error {
	log, err := initializeLogger(cfg)
	if err != nil {
		return err
	}

	defer log.Close()
	defer recoverPanic(log)

	log.Info("Starting passthru daemon", slog.String("version", version.GetVersion()))

	if cfg.Elevate {
		if err := ensureElevatedWithDeps(log, windows.IsElevated, windows.RelaunchAsAdmin, os.Exit); err != nil {
			return err
		}
	} else if !windows.IsElevated() {
		log.Warn("Not running elevated, bridges cannot be installed into elevated processes")
	}

	settings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		log.Error("Failed to load config", slog.Any("error", err))
		return err
	}

	log.Debug("Config loaded",
		slog.String("path", cfg.ConfigPath),
		slog.Int("queueCapacity", settings.Hook.QueueCapacity),
		slog.Duration("remoteTimeout", settings.Remote.Timeout),
		slog.String("resolver", settings.Remote.Resolver),
		slog.Int("childDepth", settings.Target.ChildDepth),
	)

	companionPath, err := resolveCompanion(&settings)
	if err != nil {
		log.Error("Companion module unavailable", slog.Any("error", err))
		return err
	}

	pipeName := settings.PipeName
	if cfg.PipeName != "" {
		pipeName = cfg.PipeName
	}

	shutdown := newTeardown(log)
	if err := startDaemon(log, &settings, companionPath, pipeName, shutdown); err != nil {
		return errors.Join(err, shutdown.Run())
	}

	waitForShutdown(log)

	if err := shutdown.Run(); err != nil {
		return err
	}

	log.Info("Daemon stopped")
	return nil
}

// startDaemon constructs every component and registers its cleanup
func startDaemon(log logger.LoggerInterface, settings *config.Config, companionPath, pipeName string, shutdown *teardown) error {
	api := windows.NewWindowsAPI(log.With("component", "windows"))

	resolver, err := remote.NewSymbolResolver(settings.Remote.Resolver, api)
	if err != nil {
		return err
	}

	remoteLog := log.With("component", "remote")

	manager := inject.NewManager(log.With("component", "inject"), &inject.Dependencies{
		Windows:   api,
		Processes: api,
		Modules:   api,
		Loader:    remote.NewLoader(remoteLog, api, api, settings.Remote.Timeout),
		Invoker:   remote.NewInvoker(remoteLog, api, resolver, settings.Remote.Timeout),
	}, inject.Options{
		ModulePath: companionPath,
		Resolver:   inject.ChildChain(settings.Target.ChildDepth),
	})

	shutdown.Add("bridges", func() error {
		budget := timeouts.ShutdownTimeout(settings.Remote.Timeout, len(manager.Registered()))
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		return manager.Close(ctx)
	})

	dispatcher := hook.NewDispatcher(log.With("component", "hook"), settings.Hook.QueueCapacity)
	if err := dispatcher.Start(context.Background()); err != nil {
		return err
	}

	shutdown.Add("dispatcher", dispatcher.Stop)

	mouseHook := windows.NewMouseHook(log.With("component", "hook"))
	if err := mouseHook.Start(dispatcher.HandleMouse); err != nil {
		return fmt.Errorf("start mouse hook: %w", err)
	}

	shutdown.Add("mouse hook", mouseHook.Stop)

	controller := overlay.NewController(log.With("component", "overlay"), &overlay.Dependencies{
		Windows:   api,
		Injector:  manager,
		Listeners: dispatcher.Listeners(),
		Stats:     dispatcher.Stats,
		Registry:  manager.Registered,
	})

	server := ipc.NewServer(log.With("component", "ipc"), pipeName, controller, settings.Remote.Timeout)
	if err := server.Start(); err != nil {
		return err
	}

	shutdown.Add("control pipe", server.Stop)

	// Console close, logoff and shutdown end the process when the handler
	// returns, so bridges are removed on the handler thread.
	if err := windows.HandleConsoleEvents(func(event string) {
		log.Info("Console event received, shutting down", slog.String("event", event))
		_ = shutdown.Run()
	}); err != nil {
		log.Warn("Console control handler not installed", slog.Any("error", err))
	}

	log.Info("Daemon ready", slog.String("pipe", server.PipeName()), slog.String("companion", companionPath))
	return nil
}

// resolveCompanion returns the absolute companion path, relative paths
// being taken from the working directory
func resolveCompanion(settings *config.Config) (string, error) {
	path, err := settings.ResolveCompanionPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("companion module %s: %w", path, err)
	}

	return path, nil
}

func waitForShutdown(log logger.LoggerInterface) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	log.Debug("Received signal", slog.Any("signal", sig))
	log.Info("Interrupt signal received, starting cleanup")
}
