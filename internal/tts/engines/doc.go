// Package engines provides the concrete speech engines behind tts.Engine:
// piper (one subprocess per call), kokoro (HTTP server), and a deterministic
// mock for tests and dry runs. Cached wraps any of them with the audio cache.
package engines
