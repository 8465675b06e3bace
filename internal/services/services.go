// Package services holds the adapters for external systems: object storage
// providers, the event bus, the virus scanner and the upload target registry.
package services

import "log/slog"

func serviceLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("service", name)
}
