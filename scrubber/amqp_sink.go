package scrubber

import (
	"context"
	"fmt"

	"github.com/segmentio/encoding/json"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const defaultRoutingPrefix = "fpl"

// AMQPConfig represents the config of the AMQPSink
type AMQPConfig struct {
	DSN           string `json:"dsn" yaml:"dsn"`
	Exchange      string `json:"exchange" yaml:"exchange"`
	RoutingPrefix string `json:"routing_prefix" yaml:"routing_prefix"`
	TLS           bool   `json:"tls" yaml:"tls"`
}

type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type channel interface {
	publisher
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	Close() error
}

type brokerConnection struct {
	conn *amqp.Connection
}

func (b brokerConnection) Channel() (channel, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

func (b brokerConnection) Close() error {
	return b.conn.Close()
}

func dialBroker(config AMQPConfig) (connection, error) {
	var conn *amqp.Connection
	var err error

	if config.TLS {
		conn, err = amqp.DialTLS(config.DSN, nil)
	} else {
		conn, err = amqp.Dial(config.DSN)
	}
	if err != nil {
		return nil, err
	}

	return brokerConnection{conn: conn}, nil
}

type batchMessage struct {
	Source  Source          `json:"source"`
	Records []recordMessage `json:"records"`
}

type recordMessage struct {
	Measurement string                 `json:"measurement"`
	Tags        map[string]string      `json:"tags"`
	Time        string                 `json:"time"`
	Fields      map[string]interface{} `json:"fields"`
}

// AMQPSink publishes every batch as one JSON message on a topic exchange
type AMQPSink struct {
	config     AMQPConfig
	dial       func(AMQPConfig) (connection, error)
	connection connection
	channel    publisher
	logger     *zap.SugaredLogger
}

// Connect dials the broker, opens a channel and declares the exchange. On
// failure nothing is left open.
func (s *AMQPSink) Connect(_ context.Context) error {
	conn, err := s.dial(s.config)
	if err != nil {
		return fmt.Errorf("AMQPSink: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()

		return fmt.Errorf("AMQPSink: failed to get Channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		s.config.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()

		return fmt.Errorf("AMQPSink: failed to declare Exchange: %w", err)
	}

	s.connection = conn
	s.channel = ch
	s.logger.Infof("AMQPSink: connection established (exchange: %q)", s.config.Exchange)

	return nil
}

// Write publishes the batch. The routing key is derived from the batch source.
func (s *AMQPSink) Write(_ context.Context, records []Record) error {
	if s.channel == nil {
		return ErrNotConnected
	}
	if len(records) == 0 {
		return nil
	}

	msg := batchMessage{
		Source:  records[0].Source,
		Records: make([]recordMessage, 0, len(records)),
	}
	for _, r := range records {
		msg.Records = append(msg.Records, recordMessage{
			Measurement: r.Measurement,
			Tags:        r.Tags,
			Time:        r.Timestamp(),
			Fields:      r.Fields,
		})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("AMQPSink: %w", err)
	}

	err = s.channel.Publish(
		s.config.Exchange,
		s.routingKey(msg.Source),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    records[0].Time,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("AMQPSink: %w", err)
	}

	return nil
}

func (s *AMQPSink) routingKey(source Source) string {
	prefix := s.config.RoutingPrefix
	if prefix == "" {
		prefix = defaultRoutingPrefix
	}

	return prefix + "." + string(source)
}

// Close closes the broker connection
func (s *AMQPSink) Close() error {
	if s.connection == nil {
		return nil
	}

	if err := s.connection.Close(); err != nil {
		return fmt.Errorf("AMQPSink: connection close error: %w", err)
	}
	s.connection, s.channel = nil, nil

	s.logger.Info("AMQPSink: shutdown OK")

	return nil
}

// NewAMQPSink creates a new AMQPSink
func NewAMQPSink(config AMQPConfig, logger *zap.SugaredLogger) *AMQPSink {
	return &AMQPSink{
		config: config,
		dial:   dialBroker,
		logger: logger,
	}
}
