package detection

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-audio-detect/pkg/queue"
)

// ResultPublisher pushes detection results onto a topic through the queue
// manager. It assigns a job ID when the detector did not, and reports
// delivery as a boolean per the queue layer's fail-open contract.
type ResultPublisher struct {
	manager *queue.Manager
	topic   string
	logger  zerolog.Logger
}

func NewResultPublisher(manager *queue.Manager, topic string, logger zerolog.Logger) *ResultPublisher {
	return &ResultPublisher{
		manager: manager,
		topic:   topic,
		logger:  logger.With().Str("component", "ResultPublisher").Str("topic", topic).Logger(),
	}
}

// Publish sends result on the publisher's topic. Returns false when the
// queue is disabled or the backend rejected the message.
func (p *ResultPublisher) Publish(result Result) bool {
	if result.JobID == "" {
		result.JobID = uuid.NewString()
	}

	payload, err := resultToMap(result)
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", result.JobID).Msg("Failed to convert result to payload")
		return false
	}

	ok := p.manager.Publish(p.topic, payload)
	if !ok {
		p.logger.Warn().Str("job_id", result.JobID).Msg("Result was not delivered")
		return false
	}
	p.logger.Debug().Str("job_id", result.JobID).Msg("Result published")
	return true
}

// resultToMap flattens a Result into the JSON-compatible map the queue layer
// publishes, dropping empty optional fields via the struct's json tags.
func resultToMap(result Result) (map[string]any, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to rebuild result payload: %w", err)
	}
	return payload, nil
}
