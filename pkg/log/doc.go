/*
Package log provides structured logging for the orchestration core using
zerolog.

A single global logger is initialized once at startup via Init; components
derive child loggers carrying their identity:

	logger := log.WithComponent("queue-manager")
	logger.Info().Str("queue", "validation-tasks").Msg("processor started")

Child helpers exist for the recurring correlation fields: WithSaga,
WithQueue, WithNamespace, WithTopic. Console output is the default;
JSONOutput switches to machine-readable lines for production. SetLevel
applies log-level changes from config hot reload without restarting.
*/
package log
