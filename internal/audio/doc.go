// Package audio holds the sample-level helpers of the synthesis pipeline:
// silence trimming, PCM16 encoding, resampling, and speaker playback through
// oto/v3.
package audio
