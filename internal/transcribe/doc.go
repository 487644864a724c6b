// Package transcribe converts recorded audio to text through remote
// speech-to-text backends and optionally rewrites the result.
//
// Backends form a closed set selected by Kind. Each one owns its request
// encoding and response parsing; hosted backends check for an API key before
// any network call. Every call is bounded by the client timeout and never
// retried.
package transcribe
