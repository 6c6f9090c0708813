// Package logging sets up annodex logging. By default only warnings reach
// stderr; with --debug, structured JSON logs are also written to a
// rotating file under ~/.annodex/logs/. The MCP server logs to the file
// only, since stdout carries the protocol.
package logging
