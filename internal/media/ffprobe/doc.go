// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Prober: the interface the mediafile-scan stage probes files through
//   - Command: Prober backed by the ffprobe binary
//
// Helper methods on Result pick the primary video stream, list audio codecs
// and embedded subtitle languages, and parse durations and sizes.
package ffprobe
