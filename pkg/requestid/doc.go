// Package requestid attaches a correlation id to every HTTP request so log
// records of one request can be grouped.
//
// Middleware keeps a client supplied X-Request-ID when it is a short token of
// letters, digits, '-' and '_', and otherwise generates a UUID. Register
// LoggerExtractor with the logger factory to include the id in every record
// logged with the request context.
package requestid
