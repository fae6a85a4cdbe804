// Package api implements the playout control API and status push.
//
// This package provides:
//   - The command endpoint POST /api/v1/channels/{id}/{method}
//   - Per-channel listeners on controller_port serving POST /{method}
//   - As-run history at GET /api/v1/asrun
//   - The command audit trail at GET /api/v1/audit
//   - A WebSocket hub pushing status snapshots and advances
//   - Control commands received over MQTT on .../playout/<ch>/command
//   - Bearer token auth with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, metrics)
//
// # Commands
//
// A command body is a JSON object of arguments. The reply always carries
// the resulting status code and a message, merged with method data:
//
//	POST /api/v1/channels/1/cue  {"id_item": 42, "play": true}
//	200 {"response": 200, "message": "Playing item ID:42", "id_item": 42}
//
// Methods: cue, cue_forward, cue_backward, take, retake, freeze, abort,
// clear, set, stat, plugin_list, plugin_exec, recover. Unknown methods
// answer 501.
//
// # Security
//
// With security.jwt.secret set every route except /health and /metrics
// needs a bearer token minted by package auth, and each method checks the
// token's role. Without a secret the API is open, which suits an isolated
// playout network. The legacy per-channel ports never require a token.
package api
