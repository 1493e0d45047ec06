package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/maelstrom-txn/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
//
// The handler writes to stderr: stdout belongs to the protocol loop and must
// never carry anything but frames.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	// In dev, show debug level; in prod, default to info
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stderr, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}
