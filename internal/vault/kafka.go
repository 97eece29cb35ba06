package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/elys-network/fluxpool/internal/logger"
	"github.com/elys-network/fluxpool/internal/types"
)

// TransferMessage is the Kafka payload of a single transfer instruction.
type TransferMessage struct {
	OperationID string `json:"operation_id"`
	Index       int    `json:"index"`
	Recipient   string `json:"recipient"`
	Denom       string `json:"denom"`
	Amount      string `json:"amount"`
}

// KafkaLedger publishes transfer instructions to a topic for an external settlement service.
// Messages are keyed by recipient so that transfers to one address stay ordered.
type KafkaLedger struct {
	producer sarama.SyncProducer
	topic    string
}

// SaramaConfig returns the producer configuration the ledger expects.
func SaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewKafkaLedger connects a sync producer to brokers.
func NewKafkaLedger(brokers []string, topic string) (*KafkaLedger, error) {
	producer, err := sarama.NewSyncProducer(brokers, SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaLedgerFromProducer(producer, topic), nil
}

func NewKafkaLedgerFromProducer(producer sarama.SyncProducer, topic string) *KafkaLedger {
	return &KafkaLedger{producer: producer, topic: topic}
}

func (l *KafkaLedger) EnqueueTransfers(ctx context.Context, operationID string, transfers []types.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(transfers))
	for i, tr := range transfers {
		js, err := json.Marshal(TransferMessage{
			OperationID: operationID,
			Index:       i,
			Recipient:   tr.Recipient,
			Denom:       tr.Coin.Denom,
			Amount:      tr.Coin.Amount.String(),
		})
		if err != nil {
			return fmt.Errorf("json marshal transfer: %w", err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: l.topic,
			Key:   sarama.StringEncoder(tr.Recipient),
			Value: sarama.ByteEncoder(js),
		})
	}

	if err := l.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("send transfers to kafka: %w", err)
	}

	log := logger.GetForComponent("kafka_ledger")
	log.Debug().
		Str("operation_id", operationID).
		Str("topic", l.topic).
		Int("transfers", len(msgs)).
		Msg("Transfers published")
	return nil
}

func (l *KafkaLedger) Close() error {
	return l.producer.Close()
}
