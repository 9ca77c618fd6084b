// Package logging configures the process-wide slog logger and provides
// attribute helpers shared across components.
package logging
