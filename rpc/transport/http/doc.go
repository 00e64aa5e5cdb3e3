// Package http implements the RPC transport over plain HTTP.
//
// Requests are POSTed to /{collection} with the serialized message as the
// body, store level requests go to /. The response body is the serialized
// response message. A non 200 status only ever means a transport problem,
// store errors travel inside the response message.
//
// Key Components:
//
//   - httpClientTransport: spreads requests round-robin over all configured
//     endpoints. A failed request is retried on the next endpoint up to
//     RetryCount times.
//
//   - httpServerTransport: serves NewHandler. Besides the RPC routes it
//     exposes GET /metrics in the Prometheus text format, including the
//     store operation metrics. With log level debug every request is logged.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use once Connect returned.
//	The round-robin counter is updated atomically.
package http
