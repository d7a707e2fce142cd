// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command veilgate starts the LLM gateway HTTP server.
//
// It reads configuration from environment variables and blocks until
// SIGINT/SIGTERM.
//
// # Environment Variables
//
//   - VEILGATE_PORT: HTTP server port (default: 12300)
//   - VEILGATE_LOG_LEVEL: minimum log level, debug|info|warn|error (default: info)
//   - VEILGATE_LOG_JSON: "true" switches stderr logs from text to JSON
//   - VEILGATE_LOG_DIR: also write JSON logs to a dated file in this directory
//   - VEILGATE_DATA_DIR: badger database directory (default: in-memory)
//   - PII_DETECTOR_URL: entity-detection service base URL (default: http://localhost:5002)
//   - JUDGE_MAX_ATTEMPTS: judge task retry budget (default: 5)
//   - VEILGATE_TRACE_STDOUT: "true" exports spans to stdout
//   - VEILGATE_DEBUG: "true" enables gin debug mode
//
// # Usage
//
//	# Build
//	go build -o veilgate ./cmd/veilgate
//
//	# Run
//	VEILGATE_DATA_DIR=/var/lib/veilgate ./veilgate
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/veilgate/pkg/logging"
	"github.com/AleutianAI/veilgate/services/gateway"
)

func main() {
	logger, logCloser, err := logging.New(logging.Config{
		Level:   os.Getenv("VEILGATE_LOG_LEVEL"),
		Service: "gateway",
		JSON:    os.Getenv("VEILGATE_LOG_JSON") == "true",
		LogDir:  os.Getenv("VEILGATE_LOG_DIR"),
	})
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := gateway.Config{
		Port:             getEnvInt("VEILGATE_PORT", 12300),
		DataDir:          os.Getenv("VEILGATE_DATA_DIR"),
		DetectorURL:      getEnvString("PII_DETECTOR_URL", "http://localhost:5002"),
		JudgeMaxAttempts: getEnvInt("JUDGE_MAX_ATTEMPTS", 5),
		TraceStdout:      os.Getenv("VEILGATE_TRACE_STDOUT") == "true",
		Debug:            os.Getenv("VEILGATE_DEBUG") == "true",
	}

	logger.Info("starting gateway",
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("detector_url", cfg.DetectorURL),
	)

	svc, err := gateway.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
