package scrubber

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

// MySQLConfig represents the MySQL configuration
type MySQLConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

const createRecordTable = "CREATE TABLE IF NOT EXISTS `outage_record` (" +
	"`id` BIGINT UNSIGNED NOT NULL AUTO_INCREMENT, " +
	"`source` VARCHAR(32) NOT NULL, " +
	"`measurement` VARCHAR(64) NOT NULL, " +
	"`tags` JSON NOT NULL, " +
	"`fields` JSON NOT NULL, " +
	"`recorded_at` DATETIME(6) NOT NULL, " +
	"PRIMARY KEY (`id`), " +
	"KEY `measurement_recorded_at` (`measurement`, `recorded_at`))"

const insertRecord = "INSERT INTO `outage_record` (`source`, `measurement`, `tags`, `fields`, `recorded_at`) " +
	"VALUES (?, ?, ?, ?, ?)"

// MySQLSink stores each record as a row of the outage_record table
type MySQLSink struct {
	config MySQLConfig
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Connect opens the database, checks it is reachable and creates the table
func (s *MySQLSink) Connect(ctx context.Context) error {
	if s.db == nil {
		db, err := sql.Open("mysql", s.config.DSN)
		if err != nil {
			return fmt.Errorf("MySQLSink: database connection error: %w", err)
		}
		s.db = db
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("MySQLSink: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, createRecordTable); err != nil {
		return fmt.Errorf("MySQLSink: %w", err)
	}

	s.logger.Info("MySQLSink: connected")

	return nil
}

// Write inserts a batch in one transaction; either every record is stored or none
func (s *MySQLSink) Write(ctx context.Context, records []Record) (err error) {
	if s.db == nil {
		return ErrNotConnected
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("MySQLSink: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return fmt.Errorf("MySQLSink: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		tags, err := json.Marshal(r.Tags)
		if err != nil {
			return fmt.Errorf("MySQLSink: %w", err)
		}
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("MySQLSink: %w", err)
		}

		if _, err := stmt.ExecContext(ctx, string(r.Source), r.Measurement, string(tags), string(fields), r.Time); err != nil {
			return fmt.Errorf("MySQLSink: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("MySQLSink: %w", err)
	}

	return nil
}

// Close closes the database
func (s *MySQLSink) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// NewMySQLSink creates a new MySQLSink
func NewMySQLSink(config MySQLConfig, logger *zap.SugaredLogger) *MySQLSink {
	return &MySQLSink{
		config: config,
		logger: logger,
	}
}
