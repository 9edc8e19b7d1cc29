// Package logger provides structured logging utilities built on Go's standard slog package.
//
// # Basic Usage
//
//	import "github.com/alltuner/vibetuner/core/logger"
//
//	// Development: text format, debug level
//	log := logger.New(logger.WithDevelopment("myapp"))
//
//	// Production: JSON format, info level
//	log := logger.New(logger.WithProduction("myapp"))
//
//	// Pick the preset from configuration
//	log := logger.ForEnv(cfg.Env, cfg.AppName, cfg.LogLevel)
//
// # Attribute Helpers
//
// Helpers return an empty slog.Attr for nil or empty values, so they can be
// passed unconditionally:
//
//	log.Warn("relay publish failed",
//		logger.Component("sse"),
//		logger.Channel("chat:room1"),
//		logger.Error(err),
//	)
//
// # Testing
//
//	var buf bytes.Buffer
//	log := logger.New(logger.WithJSONFormatter(), logger.WithOutput(&buf))
//	log.Info("Test message", logger.Component("test"))
//	assert.Contains(t, buf.String(), `"component":"test"`)
package logger
