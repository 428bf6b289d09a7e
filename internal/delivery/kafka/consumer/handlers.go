package consumer

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"github.com/pitchside/tacticsroom/internal/delivery/kafka"
)

// HandleFormationDeleted tears down any live session on the deleted
// formation; its participants get a session_ended broadcast.
func (c *Consumer) HandleFormationDeleted(ctx context.Context, message *sarama.ConsumerMessage) error {
	c.l.Info(ctx, "HandleFormationDeleted consumed")

	var e kafka.FormationDeletedEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleFormationDeleted: %v", err)
		return err
	}

	if err := c.collabSvc.EndFormationSessions(ctx, e.FormationID, "Formation deleted"); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleFormationDeleted: %v", err)
		return err
	}

	return nil
}
