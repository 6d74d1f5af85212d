// Package httpmw holds the HTTP middleware shared by the site and API routes.
//
// httpserver composes them outermost first: security headers, panic
// recovery, request ID, client IP, OTel, trace headers, metrics, request
// logger, then the chi router. Per-route middleware (access log, route
// annotation, body limits, rate limiting) is attached inside the router.
//
// Query strings, user agents and form bodies are kept out of logs.
package httpmw
