package main

import (
	"fmt"
	"os"

	"github.com/lumenpass/lumenpass/internal/config"
	"github.com/lumenpass/lumenpass/internal/logging"
	"github.com/lumenpass/lumenpass/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logFormat := "text"
	if cfg.IsProduction() {
		logFormat = "json"
	}
	logger := logging.New(cfg.LogLevel, logFormat)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
