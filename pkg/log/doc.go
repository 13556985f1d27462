/*
Package log provides the process-wide zerolog root logger.

The server logs to two places at once: a console stream (human-readable
by default, raw JSON with --log-json) and, once the cloud directory
layout exists, the server log file under log/. Init builds the root
logger for that pair; it runs twice at startup - once from the CLI hook
before the configuration is loaded, and again with the log file attached.

Every package logs through a component child:

	logger := log.WithComponent("filestore")
	logger.Info().Str("store", path).Msg("Reading index file")

so the component field is present on every entry and a single grep
isolates one service's activity. WithRequestID layers the request id of
an in-flight file or process task on top, keeping the correlation id in
the logs identical to the one in the dispatcher's maps.
*/
package log
