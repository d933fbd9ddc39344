package forwarding

import (
	"log/slog"
	"os"

	"github.com/powerpuffpenguin/sniroute/config"
)

func newLogger(conf *config.Logger, level string) (log *slog.Logger, e error) {
	if level == `` {
		level = conf.Level
	}
	var value slog.Level
	switch level {
	case "debug":
		value = slog.LevelDebug
	case "warn":
		value = slog.LevelWarn
	case "error":
		value = slog.LevelError
	default:
		value = slog.LevelInfo
	}
	log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     value,
		AddSource: conf.Source,
	}))
	return
}
