package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"updatestream-cdc/internal/updatestream"
)

// Stream is the update-stream connection surface the processor drives.
type Stream interface {
	StreamStart(ctx context.Context, pos updatestream.Position) (*updatestream.ChangeEvent, error)
	StreamNext() (*updatestream.ChangeEvent, error)
}

// Publisher delivers decoded events downstream.
type Publisher interface {
	Publish(event *updatestream.ChangeEvent) error
}

// Checkpointer records the last fully published group id.
type Checkpointer interface {
	Save(groupID string) error
}

// Processor follows one update stream and pushes each event through the
// transformer to the publisher, checkpointing as it goes.
type Processor struct {
	stream      Stream
	publisher   Publisher
	transformer *Transformer
	checkpoint  Checkpointer
	logger      *logrus.Logger
}

// New creates a processor. transformer and checkpoint may be nil.
func New(stream Stream, publisher Publisher, transformer *Transformer, checkpoint Checkpointer, logger *logrus.Logger) *Processor {
	return &Processor{
		stream:      stream,
		publisher:   publisher,
		transformer: transformer,
		checkpoint:  checkpoint,
		logger:      logger,
	}
}

// Run follows the stream from pos until ctx is cancelled, the stream ends
// cleanly, or the connection fails. There is no retry here; a stream
// failure is returned to the caller, who decides whether to restart from
// the last checkpoint.
func (p *Processor) Run(ctx context.Context, pos updatestream.Position) error {
	p.logger.Infof("Starting update stream follower at group id %q", pos.GroupId)

	event, err := p.stream.StreamStart(ctx, pos)
	for {
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("Context cancelled, stopping follower")
				return nil
			}
			return fmt.Errorf("update stream failed: %w", err)
		}
		if event == nil {
			p.logger.Info("Update stream ended")
			return nil
		}

		if err := p.handle(event); err != nil {
			p.logger.Errorf("Error handling event at group id %s: %v", event.GroupId, err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Context cancelled, stopping follower")
			return nil
		default:
		}

		event, err = p.stream.StreamNext()
	}
}

// handle pushes one event through the transformer and publisher. Delivery
// is at-most-once: a failed publish is logged by Run and skipped without
// being checkpointed, so a later successful event moves the checkpoint past
// the lost one and a restart will not replay it.
func (p *Processor) handle(event *updatestream.ChangeEvent) error {
	out := event
	if p.transformer != nil {
		transformed, err := p.transformer.Transform(event)
		if errors.Is(err, ErrEventRejected) {
			p.logger.Debugf("Event dropped by transformer: %s %q", event.Category, event.TableName)
			return nil
		}
		if err != nil {
			return err
		}
		out = transformed
	}

	if err := p.publisher.Publish(out); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if p.checkpoint != nil && event.GroupId != "" {
		if err := p.checkpoint.Save(event.GroupId); err != nil {
			p.logger.Warnf("Failed to save checkpoint: %v", err)
		}
	}

	p.logger.Debugf("Processed %s event for table %q (%d pk rows)",
		out.Category, out.TableName, len(out.PkRows))
	return nil
}
