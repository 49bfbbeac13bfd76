// internal/inventory/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"lager/internal/pkg/mq"

	"lager/internal/inventory/domain"
)

// KafkaEventPublisher 把提交后的台账记录发布到 Kafka。
// key 用 productID，同一商品的变动保序落在同一分区。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) PublishLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal ledger entry")
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(entry.ProductID), payload); err != nil {
		return errors.Wrap(err, "publish ledger entry")
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
