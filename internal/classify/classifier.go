package classify

import (
	"context"

	"github.com/rahilrshah/productivity-app/internal/domain"
)

// Classification is the structured result of classifying one user utterance.
type Classification struct {
	// Intent is the classified purpose of the utterance. Always a known
	// intent; unparseable model output maps to the fallback intent.
	Intent domain.Intent

	// Confidence is the model's confidence in the intent, in [0, 1].
	Confidence float64

	// Entities holds the extracted raw entity values keyed by entity name
	// (title, category, due_date, duration, frequency, parent, priority,
	// target_id). Conversion into typed payloads happens downstream.
	Entities map[string]string
}

// Classifier defines the interface for intent classification and entity
// extraction. This interface is the boundary between the application core
// and the external language-model service.
type Classifier interface {
	// Classify determines the intent of the given text and extracts any
	// entities it can. contextSummary is a short description of the user's
	// active containers, used for name resolution.
	//
	// Classify degrades gracefully: malformed model output yields the
	// fallback intent with low confidence and no entities rather than an
	// error. Errors are reserved for transport-level failures.
	Classify(ctx context.Context, text string, contextSummary string) (*Classification, error)
}
