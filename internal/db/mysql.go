package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"duel/internal/config"
	"duel/internal/types"

	"github.com/charmbracelet/log"
	"github.com/go-sql-driver/mysql"
	"github.com/rotisserie/eris"
)

func mysqlConfig(cfg *config.ConfigStruct) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.MySQLUser
	mc.Passwd = cfg.MySQLPassword
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.MySQLHost, cfg.MySQLPort)
	mc.DBName = cfg.MySQLDatabase
	mc.ParseTime = true
	return mc
}

// OpenMySQL connects and pings the stats database.
func OpenMySQL(ctx context.Context, cfg *config.ConfigStruct) (*sql.DB, error) {
	connector, err := mysql.NewConnector(mysqlConfig(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "mysql config")
	}
	conn := sql.OpenDB(connector)
	conn.SetConnMaxLifetime(3 * time.Minute)
	conn.SetMaxOpenConns(10)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "mysql ping")
	}
	log.Infof("Connected to MySQL at %s", cfg.MySQLHost)
	return conn, nil
}

const createStatsTable = `
CREATE TABLE IF NOT EXISTS user_game_stats (
	user_id    VARCHAR(64) NOT NULL,
	game_kind  VARCHAR(32) NOT NULL,
	username   VARCHAR(128) NOT NULL,
	wins       INT NOT NULL DEFAULT 0,
	losses     INT NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, game_kind)
)`

const upsertStats = `
INSERT INTO user_game_stats (user_id, game_kind, username, wins, losses, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	username = VALUES(username),
	wins = wins + VALUES(wins),
	losses = losses + VALUES(losses),
	updated_at = VALUES(updated_at)`

// MySQLRecorder keeps per-user win/loss counters.
type MySQLRecorder struct {
	db *sql.DB
}

func NewMySQLRecorder(db *sql.DB) *MySQLRecorder {
	return &MySQLRecorder{db: db}
}

func (r *MySQLRecorder) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, createStatsTable)
	return eris.Wrap(err, "create user_game_stats")
}

func (r *MySQLRecorder) Record(ctx context.Context, result types.GameResult) error {
	wins, losses := 0, 0
	if result.Outcome == types.OutcomeWin {
		wins = 1
	} else {
		losses = 1
	}

	_, err := r.db.ExecContext(ctx, upsertStats,
		result.UserID, result.GameKind, result.Username, wins, losses, result.FinishedAt)
	if err != nil {
		return eris.Wrapf(err, "update stats for %s", result.UserID)
	}
	return nil
}

func (r *MySQLRecorder) Close() error {
	return r.db.Close()
}
