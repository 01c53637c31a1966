// Package webhook is the HTTP surface of the receiver.
//
// A single POST endpoint accepts deliveries from the webhook provider and
// hands them to the request pipeline, which checks the caller against the
// provider's published address ranges, verifies the body signature, requires
// the event and delivery headers and a non-empty JSON payload, then
// dispatches to the registered handler.
//
// # Routes
//
//   - POST {server.path}: webhook deliveries (plain-text responses)
//   - GET /healthz: allowlist and handler summary
//   - GET /metrics: Prometheus metrics, when enabled
//   - POST /admin/allowlist/refresh: force an allowlist refresh
//   - POST /admin/allowlist/invalidate: mark the allowlist stale and refresh in the background
//   - GET /admin/allowlist: the blocks in force
//   - GET /admin/events: audit feed as server-sent events
//
// The /admin routes are mounted only when server.admin_token is set and
// require "Authorization: Bearer <token>".
//
// # Error Responses
//
//   - 400 Bad Request: missing/malformed/wrong signature, missing headers or payload
//   - 403 Forbidden: caller outside the provider allowlist
//   - 413 Payload Too Large: body exceeds max_body_size
//   - 500 Internal Server Error: no usable allowlist, or the handler failed
//
// # Client Address
//
// Behind reverse proxies set server.proxy_count to the number of proxies.
// The client is then the X-Forwarded-For entry that many hops from the
// right. Never set it higher than the real number of proxies: any extra
// entries are supplied by the caller.
package webhook
