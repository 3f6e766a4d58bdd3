package scrubber

import (
	"context"
	"fmt"
	"net"
	"strconv"

	client "github.com/influxdata/influxdb1-client/v2"
	"go.uber.org/zap"
)

// Retention policy made default on the configured database at connect time
const (
	RetentionPolicyName        = "collect_policy"
	RetentionPolicyDuration    = "7d"
	RetentionPolicyReplication = 3
)

// InfluxConfig represents the InfluxDB connection settings
type InfluxConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// Addr returns the HTTP address of the InfluxDB server
func (c InfluxConfig) Addr() string {
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// InfluxSink writes batches to InfluxDB 1.x
type InfluxSink struct {
	config InfluxConfig
	client client.Client
	logger *zap.SugaredLogger
}

// Connect creates the client, ensures the retention policy and pings the
// server. The client is kept even if the server could not be reached, so
// later writes report their own errors.
func (s *InfluxSink) Connect(_ context.Context) error {
	if s.client == nil {
		c, err := client.NewHTTPClient(client.HTTPConfig{
			Addr:     s.config.Addr(),
			Username: s.config.Username,
			Password: s.config.Password,
		})
		if err != nil {
			return fmt.Errorf("InfluxSink: %w", err)
		}
		s.client = c
	}

	if err := s.createRetentionPolicy(); err != nil {
		return err
	}

	_, version, err := s.client.Ping(0)
	if err != nil || version == "" {
		return fmt.Errorf("InfluxSink: failed to receive version from %s: %v", s.config.Addr(), err)
	}

	s.logger.Infof("InfluxSink: connected to influxdb server %s v%s", s.config.Addr(), version)

	return nil
}

func (s *InfluxSink) createRetentionPolicy() error {
	cmd := fmt.Sprintf("CREATE RETENTION POLICY %s ON %s DURATION %s REPLICATION %d DEFAULT",
		quoteIdent(RetentionPolicyName),
		quoteIdent(s.config.Database),
		RetentionPolicyDuration,
		RetentionPolicyReplication,
	)

	resp, err := s.client.Query(client.NewQuery(cmd, s.config.Database, ""))
	if err != nil {
		return fmt.Errorf("InfluxSink: %w", err)
	}
	if err := resp.Error(); err != nil {
		return fmt.Errorf("InfluxSink: %w", err)
	}

	return nil
}

// Write sends all records in a single request with microsecond precision
func (s *InfluxSink) Write(ctx context.Context, records []Record) error {
	if s.client == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  s.config.Database,
		Precision: "us",
	})
	if err != nil {
		return fmt.Errorf("InfluxSink: %w", err)
	}

	for _, r := range records {
		pt, err := client.NewPoint(r.Measurement, r.Tags, r.Fields, r.Time)
		if err != nil {
			return fmt.Errorf("InfluxSink: %s: %w", r.Measurement, err)
		}
		bp.AddPoint(pt)
	}

	if err := s.client.Write(bp); err != nil {
		return fmt.Errorf("InfluxSink: %w", err)
	}

	return nil
}

// Close closes the client
func (s *InfluxSink) Close() error {
	if s.client == nil {
		return nil
	}

	return s.client.Close()
}

func quoteIdent(s string) string {
	return strconv.Quote(s)
}

// NewInfluxSink creates a new InfluxSink
func NewInfluxSink(config InfluxConfig, logger *zap.SugaredLogger) *InfluxSink {
	return &InfluxSink{
		config: config,
		logger: logger,
	}
}
