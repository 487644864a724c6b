// Package capture delivers audio from a recording device as a bounded stream of
// fragments and accumulates them into a single payload.
//
// A Device is acquired once per recording. The returned Stream emits fragments on
// a buffered channel at a fixed interval; Stop flushes any fragment still pending
// inside the device, closes the channel and releases the hardware. A channel that
// closes without Stop having been called signals a device failure, reported by Err.
package capture
