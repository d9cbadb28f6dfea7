// Package api exposes the paywall over HTTP: the billing provider webhook,
// the client subscription sync called by the mobile app after a purchase,
// and per-feature quota status.
//
// Routes:
//
//	POST /webhooks/billing        provider events, optional shared secret
//	POST /v1/subscription/sync    {"customerInfo": {...}} from the billing SDK
//	GET  /v1/quota/{feature}      allowance for the authenticated caller
//	GET  /health/live, /health/ready
//	GET  /metrics                 when a metrics handler is configured
//
// Caller authentication is delegated to an IdentityFunc.
package api
