package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// ClickHouseSink exports archived records for analytics
type ClickHouseSink struct {
	conn   driver.Conn
	logger *logrus.Logger
}

func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Database == "" {
		cfg.Database = "settlement"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test connection
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.WithField("addr", cfg.Addr).Info("connected to ClickHouse")
	return &ClickHouseSink{conn: conn, logger: cfg.Logger}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS requests (
		id UInt64, kind String, user_id String, status String,
		args String, statuses String, reply String, created_at DateTime64(3)
	) ENGINE = MergeTree ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS transfers (
		id UInt64, request_id UInt64, is_send UInt8, token_id UInt32,
		amount String, proof String, ts DateTime64(3)
	) ENGINE = MergeTree ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS claims (
		id UInt64, user_id String, token_id UInt32, amount String, status String,
		attempts UInt32, request_id UInt64, transfer_ids Array(UInt64), ts DateTime64(3), updated_at DateTime64(3)
	) ENGINE = MergeTree ORDER BY id`,
}

// EnsureSchema creates the export tables when missing
func (s *ClickHouseSink) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseSink) Export(ctx context.Context, b *Batch) error {
	if len(b.Requests) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO requests")
		if err != nil {
			return fmt.Errorf("prepare requests batch: %w", err)
		}
		for _, r := range b.Requests {
			statuses, err := json.Marshal(r.Statuses)
			if err != nil {
				return err
			}
			if err := batch.Append(r.ID, string(r.Kind), r.UserID, string(r.Last()),
				string(r.Args), string(statuses), string(r.Reply), r.CreatedAt); err != nil {
				return fmt.Errorf("append request %d: %w", r.ID, err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to insert requests: %w", err)
		}
	}

	if len(b.Transfers) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO transfers")
		if err != nil {
			return fmt.Errorf("prepare transfers batch: %w", err)
		}
		for _, t := range b.Transfers {
			var isSend uint8
			if t.IsSend {
				isSend = 1
			}
			if err := batch.Append(t.ID, t.RequestID, isSend, t.TokenID,
				t.Amount.String(), t.Proof.String(), t.TS); err != nil {
				return fmt.Errorf("append transfer %d: %w", t.ID, err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to insert transfers: %w", err)
		}
	}

	if len(b.Claims) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO claims")
		if err != nil {
			return fmt.Errorf("prepare claims batch: %w", err)
		}
		for _, c := range b.Claims {
			if err := batch.Append(c.ID, c.UserID, c.TokenID, c.Amount.String(), string(c.Status),
				uint32(c.Attempts), c.RequestID, c.TransferIDs, c.TS, c.UpdatedAt); err != nil {
				return fmt.Errorf("append claim %d: %w", c.ID, err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to insert claims: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"requests":  len(b.Requests),
		"transfers": len(b.Transfers),
		"claims":    len(b.Claims),
	}).Debug("exported archive batch")
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
