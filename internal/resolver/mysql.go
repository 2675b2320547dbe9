package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

const (
	lookupTimeout = 3 * time.Second

	namesQuery      = "select ph.extension, ph.fullname from phones as ph"
	nameQuery       = "select ph.fullname from phones as ph where ph.extension = ? limit 1"
	externalIDQuery = "select ci.cedula from cedulaIVR as ci where ci.linkedid = ? limit 1"
)

// MySQLConfig holds the connection settings for both lookup databases
type MySQLConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Database           string
	ExternalIDDatabase string
}

// Enabled reports whether enough settings are present to connect
func (c MySQLConfig) Enabled() bool {
	return c.Host != "" && c.Database != ""
}

// DSN renders a driver DSN for the given schema
func (c MySQLConfig) DSN(database string) string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = database
	cfg.Timeout = lookupTimeout
	cfg.ReadTimeout = lookupTimeout
	return cfg.FormatDSN()
}

// MySQL resolves names from the phones table, cached and refreshed in the
// background, and external ids from the IVR capture table.
type MySQL struct {
	names       *sql.DB
	externalIDs *sql.DB
	logger      zerolog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewMySQL opens both pools. Connections are established lazily.
func NewMySQL(cfg MySQLConfig, logger zerolog.Logger) (*MySQL, error) {
	names, err := openPool(cfg.DSN(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open names database: %w", err)
	}

	extDB := cfg.ExternalIDDatabase
	if extDB == "" {
		extDB = cfg.Database
	}
	externalIDs, err := openPool(cfg.DSN(extDB))
	if err != nil {
		names.Close()
		return nil, fmt.Errorf("failed to open external id database: %w", err)
	}

	return &MySQL{
		names:       names,
		externalIDs: externalIDs,
		logger:      logger.With().Str("component", "resolver").Logger(),
		cache:       make(map[string]string),
	}, nil
}

func openPool(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// Run refreshes the name cache immediately and then on every interval
func (r *MySQL) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info().Dur("interval", interval).Msg("name refresh started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("error retrieving names")
		}

		select {
		case <-ctx.Done():
			r.logger.Info().Msg("name refresh stopped")
			return
		case <-ticker.C:
		}
	}
}

// Refresh loads every extension not yet cached
func (r *MySQL) Refresh(ctx context.Context) error {
	query, args := refreshQuery(r.cachedExtensions())

	rows, err := r.names.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query names: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var ext, name string
		if err := rows.Scan(&ext, &name); err != nil {
			return fmt.Errorf("failed to scan name: %w", err)
		}
		r.store(ext, name)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read names: %w", err)
	}

	r.logger.Debug().Int("loaded", loaded).Msg("names refreshed")
	return nil
}

// Name returns the cached display name, falling back to a single-row query
func (r *MySQL) Name(extension string) string {
	r.mu.RLock()
	name, ok := r.cache[extension]
	r.mu.RUnlock()
	if ok {
		return name
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	if err := r.names.QueryRowContext(ctx, nameQuery, extension).Scan(&name); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.logger.Error().Err(err).Str("extension", extension).Msg("error retrieving name")
		}
		return Unknown
	}

	r.store(extension, name)
	return name
}

// ExternalID looks up the id captured by the IVR for a linked call
func (r *MySQL) ExternalID(linkedID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	var id string
	if err := r.externalIDs.QueryRowContext(ctx, externalIDQuery, linkedID).Scan(&id); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.logger.Error().Err(err).Str("linkedid", linkedID).Msg("error retrieving external id")
		}
		return Unknown
	}
	return id
}

// Close releases both pools
func (r *MySQL) Close() error {
	return errors.Join(r.names.Close(), r.externalIDs.Close())
}

func (r *MySQL) store(extension, name string) {
	r.mu.Lock()
	r.cache[extension] = name
	r.mu.Unlock()
}

func (r *MySQL) cachedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.cache))
	for ext := range r.cache {
		out = append(out, ext)
	}
	return out
}

// refreshQuery excludes extensions that are already cached
func refreshQuery(known []string) (string, []any) {
	if len(known) == 0 {
		return namesQuery, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(known)), ", ")
	args := make([]any, len(known))
	for i, ext := range known {
		args[i] = ext
	}
	return namesQuery + " where ph.extension not in (" + placeholders + ")", args
}
