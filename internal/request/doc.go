// Package request delivers batches of pre-serialized analytics events to a
// collection endpoint.
//
// A Dispatcher is built once from config.RequestConfig and owns a single
// keep-alive connection to the configured host. Post wraps the batch in a
// {"sentAt", "batch"} envelope, authenticates with HTTP Basic (the app id is
// the username, the password is empty) and interprets the JSON reply.
//
// Transport failures (refused connections, timeouts, TLS errors, unreadable
// bodies) are retried up to Retries times with a fixed Backoff between
// attempts. Any HTTP reply, whatever its status, ends the call: remote errors
// are handed back in the Response and never retried. Once retries run out Post
// returns a Response with status -1 and a "Connection error: ..." message.
//
// A Stub switch shared between dispatchers turns every Post into a synthetic
// 200 without touching the network; it is meant for test harnesses.
package request
