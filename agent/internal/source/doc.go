// Package source fetches measurement batches for the agent.
//
// A Batch is one decoded document: its records, a display name, the raw
// size and a sha256 digest of the raw bytes so the ingest engine can skip
// documents it has already shipped.
//
// Remote sources implement Source and are polled by the agent:
//   - http: GET a .csv or .xlsx document; the format comes from the URL
//     path extension, falling back to Content-Type
//   - prometheus: GET a text exposition and turn each series of one gauge
//     into a record; limits come from config
//
// Both share one HTTP client per source built by buildHTTPClient, which
// applies the source's auth mode (apikey, bearer, basic, mtls) and TLS
// options through an http.RoundTripper.
//
// Inbox watches a local directory with fsnotify and emits a Batch for each
// .csv/.xlsx file that is created or rewritten, after an initial scan of the
// files already present.
package source
