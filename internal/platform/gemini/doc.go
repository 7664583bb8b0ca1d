// Package gemini implements the classify.Classifier interface using
// Google's Gemini API. It bounds input size and call latency, retries
// transient failures with jittered backoff, and degrades malformed model
// output to the fallback intent instead of propagating an error.
package gemini
