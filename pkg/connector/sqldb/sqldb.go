// Package sqldb provides the relational database connector. It speaks
// PostgreSQL through the pgx stdlib driver and MySQL/MariaDB through
// go-sql-driver, persisting channel values as (time, key, value) rows.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/connector"
	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/frame"
	"github.com/fathom-io/fathom/pkg/logger"
)

// TypeName is the canonical connector type.
const TypeName = "sql"

// DefaultTable receives channels without a table override.
const DefaultTable = "data"

// Register adds the SQL connector type and its dialect aliases to a
// connector context.
func Register(ctx *connector.Context) error {
	return ctx.RegisterType(TypeName, NewDriver, "sqldb", "database", "postgres", "mysql", "mariadb")
}

// Driver implements the connector hooks on top of database/sql.
type Driver struct {
	logger *zap.Logger

	dialect      string
	dsn          string
	table        string
	createTables bool

	timeColumn  string
	keyColumn   string
	valueColumn string

	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration

	db        *sql.DB
	resources channel.Channels
}

// NewDriver creates an unconfigured SQL driver.
func NewDriver(cfg *config.Section) (connector.Driver, error) {
	return &Driver{
		logger: logger.Get().With(zap.String("connector", cfg.StringOr("id", cfg.Name()))),
	}, nil
}

// Configure resolves the dialect, DSN and table layout. The DSN may be
// given verbatim or assembled from host, port, user, password and
// database. Sessions are pinned to UTC regardless of server timezone.
func (d *Driver) Configure(cfg *config.Section) error {
	d.dialect = strings.ToLower(cfg.StringOr("dialect", cfg.StringOr("type", "postgres")))
	switch d.dialect {
	case "postgres", "postgresql", "timescale":
		d.dialect = "postgres"
	case "mysql", "mariadb":
		d.dialect = "mysql"
	case "sql", "sqldb", "database":
		d.dialect = "postgres"
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown sql dialect %q", d.dialect)
	}

	d.table = cfg.StringOr("table", DefaultTable)
	d.createTables = cfg.BoolOr("create_tables", true)
	d.timeColumn = cfg.StringOr("time_column", "time")
	d.keyColumn = cfg.StringOr("key_column", "key")
	d.valueColumn = cfg.StringOr("value_column", "value")
	d.maxOpen = cfg.IntOr("max_open_conns", 8)
	d.maxIdle = cfg.IntOr("max_idle_conns", 2)
	d.maxLifetime = cfg.DurationOr("conn_max_lifetime", 30*time.Minute)

	if dsn := cfg.StringOr("dsn", ""); dsn != "" {
		d.dsn = dsn
		return nil
	}

	host := cfg.StringOr("host", "localhost")
	user := cfg.StringOr("user", "")
	password := cfg.StringOr("password", "")
	database, err := cfg.GetString("database")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "sql connector requires a database")
	}
	switch d.dialect {
	case "postgres":
		port := cfg.IntOr("port", 5432)
		ssl := cfg.StringOr("ssl_mode", "disable")
		d.dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s timezone=UTC",
			host, port, user, password, database, ssl)
	case "mysql":
		port := cfg.IntOr("port", 3306)
		d.dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			user, password, host, port, database)
	}
	return nil
}

func (d *Driver) driverName() string {
	if d.dialect == "mysql" {
		return "mysql"
	}
	return "pgx"
}

// Connect opens the pool and verifies it with a ping. The bound resources
// are retained so writes resolve tables and row keys per channel.
func (d *Driver) Connect(ctx context.Context, resources channel.Channels) error {
	db, err := sql.Open(d.driverName(), d.dsn)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database")
	}
	db.SetMaxOpenConns(d.maxOpen)
	db.SetMaxIdleConns(d.maxIdle)
	db.SetConnMaxLifetime(d.maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping database")
	}
	d.db = db
	d.resources = resources
	d.checkTimezone(ctx)

	if d.createTables {
		if err := d.ensureTables(ctx, resources); err != nil {
			db.Close()
			d.db = nil
			return err
		}
	}
	d.logger.Info("database connected", zap.String("dialect", d.dialect))
	return nil
}

// checkTimezone verifies the session runs on UTC. The DSN pins the session
// timezone; a mismatch here points at a server forcing its own zone, which
// would skew every stored timestamp, so it is logged loudly.
func (d *Driver) checkTimezone(ctx context.Context) {
	query := "SELECT current_setting('TIMEZONE')"
	if d.dialect == "mysql" {
		query = "SELECT @@session.time_zone"
	}
	var zone string
	if err := d.db.QueryRowContext(ctx, query).Scan(&zone); err != nil {
		d.logger.Warn("failed to query session timezone", zap.Error(err))
		return
	}
	switch strings.ToUpper(zone) {
	case "UTC", "+00:00", "SYSTEM":
	default:
		d.logger.Warn("database session not running on UTC", zap.String("timezone", zone))
	}
}

// ensureTables creates the tables the given channels persist to when they
// do not exist yet, with a (time, key) primary key matching the upsert.
func (d *Driver) ensureTables(ctx context.Context, resources channel.Channels) error {
	tables := map[string]bool{d.table: true}
	for _, ch := range resources {
		tables[d.tableOf(ch)] = true
	}

	timeType := "TIMESTAMPTZ"
	if d.dialect == "mysql" {
		timeType = "TIMESTAMP"
	}
	for table := range tables {
		ddl := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s %s NOT NULL, %s VARCHAR(255) NOT NULL, %s TEXT, PRIMARY KEY (%s, %s))",
			table, d.timeColumn, timeType, d.keyColumn, d.valueColumn, d.timeColumn, d.keyColumn)
		if _, err := d.db.ExecContext(ctx, ddl); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to create table %s", table)
		}
	}
	return nil
}

// Disconnect closes the pool.
func (d *Driver) Disconnect(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close database")
	}
	return nil
}

// IsConnected probes the pool.
func (d *Driver) IsConnected() bool {
	if d.db == nil {
		return false
	}
	return d.db.Ping() == nil
}

// tableOf resolves the table a channel persists to, preferring a "table"
// override on its connector binding.
func (d *Driver) tableOf(ch *channel.Channel) string {
	if overrides := ch.Connector().Overrides(); overrides != nil {
		if table := overrides.StringOr("table", ""); table != "" {
			return table
		}
	}
	return d.table
}

func (d *Driver) placeholder(i int) string {
	if d.dialect == "mysql" {
		return "?"
	}
	return fmt.Sprintf("$%d", i)
}

// Read queries values of the given channels. A zero window fetches the
// single latest row per channel; otherwise all rows within [start, end]
// are returned, keyed into the frame under the channel ids.
func (d *Driver) Read(ctx context.Context, resources channel.Channels, start, end time.Time) (*frame.Frame, error) {
	if d.db == nil {
		return nil, errors.New(errors.ErrorTypeConnection, "database not connected")
	}
	data := frame.New()
	for _, group := range resources.GroupBy(d.tableOf) {
		if start.IsZero() && end.IsZero() {
			if err := d.readLatest(ctx, group.Value, group.Channels, data); err != nil {
				return nil, err
			}
			continue
		}
		if err := d.readWindow(ctx, group.Value, group.Channels, start, end, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (d *Driver) readLatest(ctx context.Context, table string, channels channel.Channels, data *frame.Frame) error {
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = %s ORDER BY %s DESC LIMIT 1",
		d.timeColumn, d.valueColumn, table, d.keyColumn, d.placeholder(1), d.timeColumn)
	for _, ch := range channels {
		var (
			timestamp time.Time
			value     interface{}
		)
		err := d.db.QueryRowContext(ctx, query, d.keyOf(ch)).Scan(&timestamp, &value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to query table %q", table)
		}
		data.Set(ch.ID(), timestamp, normalizeValue(value))
	}
	return nil
}

func (d *Driver) readWindow(ctx context.Context, table string, channels channel.Channels,
	start, end time.Time, data *frame.Frame) error {
	keys := make(map[string]string, len(channels))
	placeholders := make([]string, 0, len(channels))
	args := make([]interface{}, 0, len(channels)+2)
	for i, ch := range channels {
		key := d.keyOf(ch)
		keys[key] = ch.ID()
		placeholders = append(placeholders, d.placeholder(i+1))
		args = append(args, key)
	}
	args = append(args, start.UTC(), end.UTC())

	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s IN (%s) AND %s >= %s AND %s <= %s ORDER BY %s",
		d.keyColumn, d.timeColumn, d.valueColumn, table,
		d.keyColumn, strings.Join(placeholders, ", "),
		d.timeColumn, d.placeholder(len(channels)+1),
		d.timeColumn, d.placeholder(len(channels)+2),
		d.timeColumn)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to query table %q", table)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key       string
			timestamp time.Time
			value     interface{}
		)
		if err := rows.Scan(&key, &timestamp, &value); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to scan table %q", table)
		}
		id, ok := keys[key]
		if !ok {
			continue
		}
		data.Set(id, timestamp, normalizeValue(value))
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to iterate table %q", table)
	}
	return nil
}

// keyOf resolves the row key a channel is stored under, preferring a
// "column" override on its connector binding.
func (d *Driver) keyOf(ch *channel.Channel) string {
	if overrides := ch.Connector().Overrides(); overrides != nil {
		if key := overrides.StringOr("column", ""); key != "" {
			return key
		}
	}
	return ch.ID()
}

type upsertRow struct {
	time  time.Time
	key   string
	value interface{}
}

// resolveColumn maps a frame column (channel id) to the table and row key
// it persists under, honoring the same binding overrides the read path
// resolves through tableOf and keyOf. Columns without a bound resource
// fall back to the default table under the column name.
func (d *Driver) resolveColumn(column string) (table, key string) {
	if ch, ok := d.resources.Get(column); ok {
		return d.tableOf(ch), d.keyOf(ch)
	}
	return d.table, column
}

// Write upserts one row per frame cell, partitioned by table.
func (d *Driver) Write(ctx context.Context, data *frame.Frame) error {
	if d.db == nil {
		return errors.New(errors.ErrorTypeConnection, "database not connected")
	}
	batches := make(map[string][]upsertRow)
	tables := make([]string, 0)
	for _, column := range data.Columns() {
		table, key := d.resolveColumn(column)
		series := data.Column(column)
		for i := 0; i < series.Len(); i++ {
			point := series.At(i)
			if frame.IsNA(point.Value) {
				continue
			}
			if _, ok := batches[table]; !ok {
				tables = append(tables, table)
			}
			batches[table] = append(batches[table], upsertRow{point.Time.UTC(), key, point.Value})
		}
	}
	if len(batches) == 0 {
		return nil
	}

	upsert := " ON CONFLICT (%s, %s) DO UPDATE SET %s = EXCLUDED.%s"
	suffix := fmt.Sprintf(upsert, d.timeColumn, d.keyColumn, d.valueColumn, d.valueColumn)
	if d.dialect == "mysql" {
		suffix = fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = VALUES(%s)", d.valueColumn, d.valueColumn)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, table := range tables {
		query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)%s",
			table, d.timeColumn, d.keyColumn, d.valueColumn,
			d.placeholder(1), d.placeholder(2), d.placeholder(3), suffix)
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to prepare insert into table %q", table)
		}
		for _, row := range batches[table] {
			if _, err := stmt.ExecContext(ctx, row.time, row.key, row.value); err != nil {
				stmt.Close()
				return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to insert into table %q", table)
			}
		}
		stmt.Close()
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit insert")
	}
	return nil
}

// normalizeValue maps driver-specific scan results to plain Go values.
func normalizeValue(value interface{}) interface{} {
	if raw, ok := value.([]byte); ok {
		return string(raw)
	}
	return value
}
