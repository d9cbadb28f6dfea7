// Package handler holds the small HTTP toolkit shared by the API routes:
// a Response type rendered by Wrap, JSON and error responses keyed by
// HTTPError, and size limited body decoding.
//
//	r.Get("/v1/ping", handler.Wrap(log, func(r *http.Request) handler.Response {
//		return handler.OK(map[string]string{"status": "ok"})
//	}))
package handler
