package scrubber

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/streadway/amqp"
	"go.uber.org/zap/zaptest"
)

type publishing struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published  []publishing
	err        error
	declareErr error
	declared   string
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	if f.declareErr != nil {
		return f.declareErr
	}
	f.declared = name + "/" + kind
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeConnection struct {
	ch         *fakeChannel
	channelErr error
	closed     bool
}

func (f *fakeConnection) Channel() (channel, error) {
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return f.ch, nil
}

func (f *fakeConnection) Close() error {
	f.closed = true
	return nil
}

func newAMQPTestSink(t *testing.T, conn *fakeConnection) *AMQPSink {
	s := NewAMQPSink(AMQPConfig{Exchange: "outages"}, zaptest.NewLogger(t).Sugar())
	s.dial = func(AMQPConfig) (connection, error) { return conn, nil }

	return s
}

func TestAMQPSinkConnect(t *testing.T) {
	conn := &fakeConnection{ch: &fakeChannel{}}
	s := newAMQPTestSink(t, conn)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if conn.ch.declared != "outages/topic" {
		t.Errorf("declared = %q, want outages/topic", conn.ch.declared)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
	if err := s.Write(context.Background(), []Record{{}}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write() after Close() error = %v, want ErrNotConnected", err)
	}
}

func TestAMQPSinkConnectFailureClosesConnection(t *testing.T) {
	tests := []struct {
		name string
		conn *fakeConnection
	}{
		{"channel", &fakeConnection{channelErr: errors.New("channel limit reached")}},
		{"exchange", &fakeConnection{ch: &fakeChannel{declareErr: errors.New("PRECONDITION_FAILED")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newAMQPTestSink(t, tt.conn)

			if err := s.Connect(context.Background()); err == nil {
				t.Fatal("Connect() error = nil, want error")
			}
			if !tt.conn.closed {
				t.Error("connection left open")
			}
			if tt.conn.ch != nil && !tt.conn.ch.closed {
				t.Error("channel left open")
			}
			if s.connection != nil || s.channel != nil {
				t.Errorf("sink keeps connection=%v channel=%v", s.connection, s.channel)
			}
			if err := s.Write(context.Background(), []Record{{}}); !errors.Is(err, ErrNotConnected) {
				t.Errorf("Write() error = %v, want ErrNotConnected", err)
			}
		})
	}
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishing{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestAMQPSinkWrite(t *testing.T) {
	ch := &fakeChannel{}
	s := NewAMQPSink(AMQPConfig{Exchange: "outages"}, zaptest.NewLogger(t).Sugar())
	s.channel = ch

	records, err := BuildStormRestore([]PointItem{point(26.1234567, -80.1, 5)}, captured)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Write(context.Background(), records); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("got %d messages, want 1", len(ch.published))
	}
	p := ch.published[0]
	if p.exchange != "outages" || p.key != "fpl.storm_restore" {
		t.Errorf("published to %q/%q", p.exchange, p.key)
	}
	if p.msg.ContentType != "application/json" || p.msg.DeliveryMode != amqp.Persistent {
		t.Errorf("publishing = %+v", p.msg)
	}

	var msg batchMessage
	if err := json.Unmarshal(p.msg.Body, &msg); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if msg.Source != SourceStormRestore || len(msg.Records) != 1 {
		t.Fatalf("message = %+v", msg)
	}
	r := msg.Records[0]
	if r.Measurement != MeasurementStormRestore || r.Tags["index"] != "0" {
		t.Errorf("record = %+v", r)
	}
	if r.Time != "2020-09-10T12:30:45.123456Z" {
		t.Errorf("time = %q", r.Time)
	}
	if r.Fields["lat"] != 26.123457 {
		t.Errorf("lat = %v", r.Fields["lat"])
	}
}

func TestAMQPSinkRoutingPrefix(t *testing.T) {
	s := NewAMQPSink(AMQPConfig{RoutingPrefix: "florida"}, zaptest.NewLogger(t).Sugar())

	if got := s.routingKey(SourceGreenTickets); got != "florida.green_tickets" {
		t.Errorf("routingKey() = %q", got)
	}
}

func TestAMQPSinkWriteErrors(t *testing.T) {
	s := NewAMQPSink(AMQPConfig{}, zaptest.NewLogger(t).Sugar())

	if err := s.Write(context.Background(), []Record{{}}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write() error = %v, want ErrNotConnected", err)
	}

	publishErr := errors.New("channel closed")
	s.channel = &fakeChannel{err: publishErr}
	if err := s.Write(context.Background(), []Record{{Source: SourceGreenTickets}}); !errors.Is(err, publishErr) {
		t.Errorf("Write() error = %v, want %v", err, publishErr)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
