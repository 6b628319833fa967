package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Setup installs the default slog logger. Logs always go to stderr as text;
// if logPath is non-empty they are additionally written to the file as JSON
// suitable for ingestion by a log collector.
func Setup(logPath string, addSource bool) (io.Closer, error) {
	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: addSource,
	}

	stderrHandler := slog.NewTextHandler(os.Stderr, opts)

	if logPath == "" {
		slog.SetDefault(slog.New(stderrHandler))
		return nil, nil
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	handler := slogmulti.Fanout(
		stderrHandler,
		slog.NewJSONHandler(file, opts),
	)

	slog.SetDefault(slog.New(handler))
	return file, nil
}
