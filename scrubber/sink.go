package scrubber

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNotConnected is returned by sinks written to before a successful Connect
var ErrNotConnected = errors.New("Sink: not connected")

// Sink kinds accepted in the sink config key
const (
	SinkInfluxDB = "influxdb"
	SinkMySQL    = "mysql"
	SinkAMQP     = "amqp"
)

// Sink receives one batch of records per completed pull. Writes are
// synchronous and never retried.
type Sink interface {
	Connect(ctx context.Context) error
	Write(ctx context.Context, records []Record) error
	Close() error
}

// NewSink creates the sink selected in the config. It does not connect.
func NewSink(config Config, logger *zap.SugaredLogger) (Sink, error) {
	switch config.Sink {
	case "", SinkInfluxDB:
		return NewInfluxSink(config.Influx(), logger), nil
	case SinkMySQL:
		return NewMySQLSink(config.MySQL, logger), nil
	case SinkAMQP:
		return NewAMQPSink(config.AMQP, logger), nil
	}

	return nil, fmt.Errorf("Sink: unknown sink %q", config.Sink)
}
