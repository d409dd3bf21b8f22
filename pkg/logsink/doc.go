// Package logsink records one entry per routed request and optionally keeps
// the raw request and response bodies on disk.
//
// Both collaborators are fire-and-forget. Sink.Record and BlobStore.Put
// return immediately; the write happens on a background goroutine and a
// failure is logged, never returned to the request path.
//
// # Sinks
//
//   - SQLiteSink writes to a request_logs table through modernc.org/sqlite,
//     using a single writer goroutine fed by a bounded channel. Entries that
//     arrive while the channel is full are dropped and counted.
//   - NopSink discards everything.
//   - MultiSink fans an entry out to several sinks.
//
// # Blobs
//
// FilesystemBlobStore writes bodies to <dir>/<yyyy-mm-dd>/<request-id>.<kind>,
// truncating anything larger than the configured maximum.
package logsink
