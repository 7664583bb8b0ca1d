// Package classify provides the interface for intent classification and
// entity extraction over user utterances. It abstracts the details of the
// language-model integration (Gemini), allowing the orchestrator to route
// intents without coupling to a specific external service.
package classify
