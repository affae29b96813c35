package detection

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-audio-detect/pkg/queue"
)

func newLoggingManager(buf *bytes.Buffer) *queue.Manager {
	return queue.NewManager(&queue.Config{Type: queue.TypeLogging, Enabled: true}, zerolog.New(buf))
}

func TestResultPublisher(t *testing.T) {
	t.Run("Publishes Detection Result", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewResultPublisher(newLoggingManager(&buf), "keyword_detections", zerolog.Nop())

		ok := p.Publish(Result{
			JobID:   "job-1",
			Success: true,
			DetectedKeywords: map[string]KeywordHit{
				"hello": {Detected: true, Occurrences: 2},
			},
			Transcription: "hello world hello",
		})

		require.True(t, ok)
		logged := buf.String()
		assert.Contains(t, logged, `"topic":"keyword_detections"`)
		assert.Contains(t, logged, `"job_id":"job-1"`)
		assert.Contains(t, logged, `"detected_keywords"`)
		assert.Contains(t, logged, `"occurrences":2`)
		assert.Contains(t, logged, `"timestamp":"`, "the manager should inject a timestamp")
	})

	t.Run("Assigns Job ID When Missing", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewResultPublisher(newLoggingManager(&buf), "keyword_detections", zerolog.Nop())

		require.True(t, p.Publish(Result{Success: true}))
		assert.Contains(t, buf.String(), `"job_id":"`, "a job id should be generated")
	})

	t.Run("Reports Disabled Queue As Not Delivered", func(t *testing.T) {
		manager := queue.NewManager(&queue.Config{Type: queue.TypeLogging, Enabled: false}, zerolog.Nop())
		p := NewResultPublisher(manager, "keyword_detections", zerolog.Nop())

		assert.False(t, p.Publish(Result{Success: true}))
	})
}

func TestResultToMap(t *testing.T) {
	payload, err := resultToMap(Result{
		JobID:   "job-2",
		Success: false,
		Error:   "decode failure",
	})
	require.NoError(t, err)

	assert.Equal(t, "job-2", payload["job_id"])
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "decode failure", payload["error"])
	_, hasText := payload["text"]
	assert.False(t, hasText, "empty optional fields should be omitted")
}
