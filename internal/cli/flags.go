package cli

import (
	"context"
	"strings"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/events"
	"github.com/julianstephens/salonbot/internal/logger"
)

// EventFlags configure where appointment events are published.
type EventFlags struct {
	KafkaBrokers string `name:"kafka-brokers" help:"Comma separated Kafka brokers for appointment events." env:"SALONBOT_KAFKA_BROKERS"`
	KafkaTopic   string `name:"kafka-topic" help:"Kafka topic for appointment events." env:"SALONBOT_KAFKA_TOPIC" default:"${kafka_topic}"`
}

// Publisher returns a Kafka publisher, or events.Noop when no brokers are set.
func (f EventFlags) Publisher() (events.Publisher, error) {
	if strings.TrimSpace(f.KafkaBrokers) == "" {
		return events.Noop{}, nil
	}
	topic := f.KafkaTopic
	if topic == "" {
		topic = constants.DefaultKafkaTopic
	}
	pub, err := events.NewKafka(f.KafkaBrokers, topic)
	if err != nil {
		return nil, err
	}
	logger.Info("Publishing appointment events", "brokers", f.KafkaBrokers, "topic", topic)
	return pub, nil
}

// ReadyCheck returns nil when no brokers are set.
func (f EventFlags) ReadyCheck() func(context.Context) error {
	if strings.TrimSpace(f.KafkaBrokers) == "" {
		return nil
	}
	return events.ReadyCheck(f.KafkaBrokers)
}
