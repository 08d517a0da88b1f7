// Package log provides a concurrency-safe simplified logging interface
// based on [log/slog].
//
// Loggers are configured with functional options applied at creation time:
//
//	logger := log.Make(os.Stderr,
//		log.WithLevel(log.LevelDebug),
//		log.WithFormat(log.FormatText),
//		log.WithTimeLayout("RFC3339Nano"),
//		log.WithCaller(true))
//
// All logging methods accept typed [slog.Attr] values only:
//
//	logger.Info("render complete", slog.Int("bytes", n))
//
// A zero-value [Logger] discards everything, which lets library types embed
// one without requiring callers to configure logging.
//
// The package also maintains a process-wide default logger used by the
// package-level functions ([Info], [DebugContext], ...). [Config] rewraps the
// default logger with additional options.
//
// # Supported Levels
//
// [LevelTrace], [LevelDebug], [LevelInfo], [LevelWarn], and [LevelError].
// Messages below the configured level are discarded.
//
// # Output Formats
//
// [FormatJSON] (default) and [FormatText]. Either may be rendered with the
// colorized "pretty" handlers via [WithPretty].
package log
