// Package log provides structured logging for Warden built on zerolog.
//
// A single global logger is initialized once at process start, either
// explicitly via Init or from the Noona DEBUG environment convention via
// InitFromDebugEnv. Components derive child loggers carrying a stable
// "component" field:
//
//	logger := log.WithComponent("installer")
//	logger.Info().Str("service", name).Msg("service installed")
//
// DEBUG=super switches to debug level with console output for local
// development; any other value (including "minimal" and unset) produces
// JSON output at info level, which is what the rest of the stack ships
// to its log pipeline.
package log
