package utils

import "golang.org/x/exp/slog"

// LoggerOrDefault returns logger, or the process default logger if logger is nil
func LoggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
