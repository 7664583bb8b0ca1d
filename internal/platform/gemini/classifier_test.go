package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahilrshah/productivity-app/internal/classify"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/platform/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStubClassifier builds a classifier whose model call is replaced by fn.
func newStubClassifier(fn func(ctx context.Context, prompt string) (string, error)) *GeminiClassifier {
	return &GeminiClassifier{
		logger:   testLogger(),
		model:    "stub-model",
		limit:    20000,
		timeout:  time.Second,
		generate: fn,
	}
}

func TestClassifyParsesModelOutput(t *testing.T) {
	t.Parallel()
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		return `{"intent":"schedule_event","confidence":0.87,"entities":{"title":"team sync","duration":"30 minutes"}}`, nil
	})

	result, err := c.Classify(context.Background(), "schedule a 30 minute team sync", "")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentScheduleEvent, result.Intent)
	assert.InDelta(t, 0.87, result.Confidence, 1e-9)
	assert.Equal(t, "team sync", result.Entities["title"])
	assert.Equal(t, "30 minutes", result.Entities["duration"])
}

func TestClassifyStripsCodeFences(t *testing.T) {
	t.Parallel()
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		return "```json\n{\"intent\":\"create_routine\",\"confidence\":0.7,\"entities\":{}}\n```", nil
	})

	result, err := c.Classify(context.Background(), "every monday water the plants", "")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentCreateRoutine, result.Intent)
}

func TestClassifyClampsConfidence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want float64
	}{
		{`{"intent":"create_task","confidence":1.7,"entities":{}}`, 1},
		{`{"intent":"create_task","confidence":-0.3,"entities":{}}`, 0},
	}
	for _, tt := range tests {
		c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
			return tt.raw, nil
		})
		result, err := c.Classify(context.Background(), "add a task", "")
		require.NoError(t, err)
		assert.Equal(t, tt.want, result.Confidence)
	}
}

func TestClassifyMalformedOutputFallsBack(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"not json at all",
		`{"confidence":0.9,"entities":{}}`,
		"",
	} {
		c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
			return raw, nil
		})
		result, err := c.Classify(context.Background(), "do the thing", "")
		require.NoError(t, err, "malformed output %q degrades, never errors", raw)
		assert.Equal(t, domain.FallbackIntent, result.Intent)
		assert.Equal(t, 0.1, result.Confidence)
		assert.Empty(t, result.Entities)
	}
}

func TestClassifyUnknownIntentFallsBack(t *testing.T) {
	t.Parallel()
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		return `{"intent":"launch_rocket","confidence":0.99,"entities":{}}`, nil
	})

	result, err := c.Classify(context.Background(), "launch the rocket", "")
	require.NoError(t, err)
	assert.Equal(t, domain.FallbackIntent, result.Intent)
	// The model's confidence is kept even when the intent is remapped.
	assert.Equal(t, 0.99, result.Confidence)
}

func TestClassifyEmptyInputSkipsModel(t *testing.T) {
	t.Parallel()
	called := false
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		called = true
		return "", nil
	})

	result, err := c.Classify(context.Background(), "   ", "")
	require.NoError(t, err)
	assert.Equal(t, domain.FallbackIntent, result.Intent)
	assert.False(t, called)
}

func TestClassifyTruncatesLongInput(t *testing.T) {
	t.Parallel()
	var seenPrompt string
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		seenPrompt = prompt
		return `{"intent":"create_task","confidence":0.5,"entities":{}}`, nil
	})
	c.limit = 50

	text := strings.Repeat("a", 49) + "HEAD" + strings.Repeat("z", 100) + "TAIL"
	_, err := c.Classify(context.Background(), text, "")
	require.NoError(t, err)
	assert.Contains(t, seenPrompt, strings.Repeat("a", 49))
	assert.NotContains(t, seenPrompt, "TAIL")
}

func TestClassifyTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	var seenPrompt string
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		seenPrompt = prompt
		return `{"intent":"create_task","confidence":0.5,"entities":{}}`, nil
	})
	c.limit = 50

	// 48 ASCII bytes followed by a 3-byte rune straddling the limit. A
	// byte-indexed cut would split the rune and send invalid UTF-8.
	text := strings.Repeat("a", 48) + "日本語"
	_, err := c.Classify(context.Background(), text, "")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(seenPrompt))
	assert.Contains(t, seenPrompt, strings.Repeat("a", 48))
	assert.NotContains(t, seenPrompt, "日")
}

func TestClassifyCancelledContextErrors(t *testing.T) {
	t.Parallel()
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Classify(ctx, "add a task", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, classify.ErrTransientFailure)
}

func TestClassifyContentBlockedFallsBack(t *testing.T) {
	t.Parallel()
	calls := 0
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", classify.ErrContentBlocked
	})

	result, err := c.Classify(context.Background(), "something unsavory", "")
	require.NoError(t, err)
	assert.Equal(t, domain.FallbackIntent, result.Intent)
	assert.Equal(t, 1, calls, "blocked content is not retried")
}

func TestClassifyRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	calls := 0
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("503 backend unavailable")
		}
		return `{"intent":"find_time","confidence":0.8,"entities":{}}`, nil
	})

	result, err := c.Classify(context.Background(), "when am I free this week", "")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentFindTime, result.Intent)
	assert.Equal(t, 2, calls)
}

func TestClassifyLogsFallbackReason(t *testing.T) {
	t.Parallel()
	logBuf := &logger.TestLogBuffer{}
	c := newStubClassifier(func(ctx context.Context, prompt string) (string, error) {
		return "garbage output", nil
	})
	c.logger = slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := c.Classify(context.Background(), "do the thing", "")
	require.NoError(t, err)

	logger.AssertLogContains(t, logBuf, "malformed classification response")
	entries, err := logBuf.GetLogEntries()
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "WARN", entries[0]["level"])
}

func TestBuildPromptIncludesContext(t *testing.T) {
	t.Parallel()
	prompt := buildPrompt("move my essay to friday", "courses: Biology 101")
	assert.Contains(t, prompt, "move my essay to friday")
	assert.Contains(t, prompt, "courses: Biology 101")
}
