package app

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates the process logger. Records go to stdout and, when a log
// file is configured, to a size-rotated file as well. The returned closer
// releases the log file.
func NewLogger(settings *Settings, level *slog.LevelVar) (*slog.Logger, io.Closer, error) {
	l, err := settings.Level()
	if err != nil {
		return nil, nil, err
	}
	level.Set(l)

	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if settings.LogFile.Path != "" {
		file := &lumberjack.Logger{
			Filename:   settings.LogFile.Path,
			MaxSize:    settings.LogFile.MaxSizeMB,
			MaxBackups: settings.LogFile.MaxBackups,
			MaxAge:     settings.LogFile.MaxAgeDays,
			Compress:   settings.LogFile.Compress,
		}
		w = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}
