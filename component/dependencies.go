package component

import (
	"log/slog"

	"github.com/c360/journaldconcat/metric"
	"github.com/c360/journaldconcat/natsclient"
)

// PlatformMeta identifies the deployment a component runs in.
type PlatformMeta struct {
	Org      string `json:"org"`
	Platform string `json:"platform"`
}

// Dependencies is what a factory receives besides its raw config. Every
// field may be left zero in unit tests.
type Dependencies struct {
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	Platform        PlatformMeta
}

// GetLogger returns Logger, or slog.Default when unset
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent tags the logger with the component name and, when
// known, the platform identity.
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	logger := d.GetLogger().With("component", componentName)
	if d.Platform.Platform != "" {
		logger = logger.With("org", d.Platform.Org, "platform", d.Platform.Platform)
	}
	return logger
}
