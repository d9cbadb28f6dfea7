// Package logger builds *slog.Logger instances for the service.
//
// New applies functional options (format, level, output, static attributes)
// and wraps the handler with LogHandlerDecorator, which runs registered
// ContextExtractor callbacks on every record. The request id middleware and
// StringExtractor use this to stamp "request_id" on every log line written
// with a request context.
//
// Attribute helpers in attr.go keep key names consistent across packages:
//
//	log.InfoContext(ctx, "Webhook event applied",
//	    logger.EventID(evt.EventID),
//	    logger.UserID(userID),
//	)
//
// Error returns an empty attribute for a nil error, so it can be passed
// without a nil check.
package logger
