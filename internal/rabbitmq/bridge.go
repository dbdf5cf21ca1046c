package rabbitmq

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"rapidphoto/internal/model"
)

// EventBridge mirrors progress events onto a topic exchange so processes
// outside this one can observe upload progress. It is strictly best-effort:
// live SSE delivery is the broker's job, and a broken bridge never fails
// the business operation that produced the event.
type EventBridge struct {
	client   Client
	exchange string
}

func NewEventBridge(client Client, exchange string) (*EventBridge, error) {
	if err := client.DeclareExchange(exchange, "topic"); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &EventBridge{
		client:   client,
		exchange: exchange,
	}, nil
}

// Mirror publishes an event with routing key upload.<event type>
func (b *EventBridge) Mirror(event model.ProgressEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("jobID", event.JobID).Msg("Failed to marshal event for bridge")
		return
	}

	headers := amqp.Table{
		"job_id":     event.JobID,
		"event_type": string(event.Type),
	}

	routingKey := fmt.Sprintf("upload.%s", event.Type)

	if err := b.client.Publish(b.exchange, routingKey, body, headers); err != nil {
		log.Warn().
			Err(err).
			Str("jobID", event.JobID).
			Str("routingKey", routingKey).
			Msg("Failed to mirror event to exchange")
	}
}
