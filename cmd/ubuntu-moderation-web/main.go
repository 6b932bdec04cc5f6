// Package main is the entry point for the moderation web service.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ubuntu/ubuntu-moderation/cmd/ubuntu-moderation-web/daemon"
)

func main() {
	a, err := daemon.New()
	if err != nil {
		slog.Error("Failed to create daemon", "err", err)
		os.Exit(1)
	}

	os.Exit(run(a))
}

type app interface {
	Run() error
	UsageError() bool
	Reload() error
	Quit(force bool)
}

func run(a app) int {
	defer installSignalHandler(a)()

	if err := a.Run(); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}

// installSignalHandler reloads the dashboard on SIGHUP. The first SIGINT or SIGTERM
// shuts down gracefully, a second one forces the shutdown.
func installSignalHandler(a app) func() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer slog.Debug("Signal handler stopped")

		var stopping bool
		for sig := range c {
			switch sig {
			case syscall.SIGHUP:
				if err := a.Reload(); err != nil {
					slog.Warn("Reload failed, the current dashboard is kept", "err", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				if stopping {
					slog.Warn("Forcing shutdown", "signal", sig)
					a.Quit(true)
					return
				}
				slog.Info("Shutting down, repeat the signal to force it", "signal", sig)
				stopping = true
				a.Quit(false)
			}
		}
	}()

	return func() {
		signal.Stop(c)
		close(c)
		wg.Wait()
	}
}
