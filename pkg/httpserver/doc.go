// Package httpserver runs the service's HTTP listener with configured
// timeouts and graceful shutdown, and provides liveness and readiness
// handlers.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// Run returns when ctx is cancelled, after in-flight requests have drained or
// the shutdown timeout has elapsed. Errors wrap ErrStart or ErrShutdown.
package httpserver
