package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/AngelCh415/lead-funnel/internal/models"
	"github.com/AngelCh415/lead-funnel/internal/telemetry"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0,
	})
}

// StageConsumer applies stage-change events to the store. Every message is
// committed once handled, including undecodable ones, so a bad event never
// blocks the partition.
type StageConsumer struct {
	r    MessageReader
	sink Sink
	log  *zap.Logger
	rec  *telemetry.Recorder

	retryDelay time.Duration
}

func NewStageConsumer(r MessageReader, sink Sink, log *zap.Logger, rec *telemetry.Recorder) *StageConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &StageConsumer{r: r, sink: sink, log: log, rec: rec, retryDelay: time.Second}
}

// Run consumes until ctx is cancelled. A store failure is retried on the same
// message until it succeeds, so the partition never skips an event.
func (c *StageConsumer) Run(ctx context.Context) error {
	defer c.r.Close()
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		for err := c.handle(ctx, m); err != nil; err = c.handle(ctx, m) {
			c.rec.StageEvent("error")
			c.log.Error("stage event failed",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *StageConsumer) handle(ctx context.Context, m kafka.Message) error {
	var u models.StageUpdate
	if err := json.Unmarshal(m.Value, &u); err != nil || u.ApplicationID == "" {
		c.rec.StageEvent("poison")
		c.log.Warn("undecodable stage event", zap.Int64("offset", m.Offset), zap.ByteString("value", m.Value), zap.Error(err))
		return nil
	}

	applied, err := c.sink.AdvanceStage(ctx, u)
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidRecord):
		c.rec.StageEvent("rejected")
		c.log.Warn("stage event rejected", zap.String("application_id", u.ApplicationID), zap.Error(err))
		return nil
	case err != nil:
		return err
	case !applied:
		c.rec.StageEvent("ignored")
		c.log.Info("stage event ignored",
			zap.String("application_id", u.ApplicationID),
			zap.String("stage_code", u.StageCode))
		return nil
	}
	c.rec.StageEvent("applied")
	c.log.Info("stage event applied",
		zap.String("application_id", u.ApplicationID),
		zap.String("stage_code", u.StageCode))
	return nil
}
