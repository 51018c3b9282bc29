package main

import (
	"os"
	"os/signal"
	"syscall"

	"signalwatch/internal/bootstrap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	container := bootstrap.NewContainer(version)
	container.MustInit()

	if err := container.Start(); err != nil {
		container.Log.Errorf("Startup failed: %v", err)
		container.Shutdown()
		os.Exit(1)
	}

	waitForShutdown(container)
}

// waitForShutdown blocks until SIGINT/SIGTERM or a fatal component error, then shuts down
func waitForShutdown(c *bootstrap.Container) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.Log.Info("Shutdown signal received", "signal", sig.String())
	case <-c.Context.Done():
		c.Log.Warn("Application context cancelled")
	}

	c.Shutdown()
}
