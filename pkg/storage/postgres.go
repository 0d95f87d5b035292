package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrFailedToParsePGConfig is returned when the connection string is malformed.
	ErrFailedToParsePGConfig = errors.New("failed to parse postgres config")
	// ErrMigrationFailed is returned when schema migrations cannot be applied.
	ErrMigrationFailed = errors.New("failed to apply migrations")
)

// PostgresConfig holds connection pool settings for the Postgres backend.
type PostgresConfig struct {
	ConnectionString  string        `env:"PG_CONN_URL,required"`
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"flagkit_migrations"`
}

// ConnectPostgres establishes a pgx pool with linear backoff between retry
// attempts, so a fleet restarting together does not hammer the database.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParsePGConfig, err)
	}
	connConfig.MaxConns = cfg.MaxOpenConns
	connConfig.MinConns = cfg.MaxIdleConns
	connConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	connConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	connConfig.MaxConnLifetime = cfg.MaxConnLifetime

	for i := range cfg.RetryAttempts {
		pool, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err != nil {
			time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
			continue
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
			continue
		}
		return pool, nil
	}

	return nil, ErrConnectionFailed
}

// MigratePostgres applies the embedded schema migrations through goose.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, cfg PostgresConfig) error {
	// goose speaks database/sql, so bridge the pgx pool through stdlib.
	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) { _ = db.Close() }(db)

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(cfg.MigrationsTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// PostgresStore persists flags in a single table with the definition as
// jsonb, so definition shape changes do not require schema migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The caller owns the pool's
// lifecycle.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id flag.ID) (*StoredFlag, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT definition, version, created_at, updated_at FROM flags WHERE id = $1`, string(id))
	sf, err := scanStored(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get", id, err)
	}
	return sf, nil
}

func (s *PostgresStore) GetMany(ctx context.Context, ids []flag.ID) (map[flag.ID]*StoredFlag, error) {
	if len(ids) == 0 {
		return map[flag.ID]*StoredFlag{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT definition, version, created_at, updated_at FROM flags WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, storageErr("get_many", "", err)
	}
	defer rows.Close()

	found := make(map[flag.ID]*StoredFlag, len(ids))
	for rows.Next() {
		sf, err := scanStored(rows)
		if err != nil {
			return nil, storageErr("get_many", "", err)
		}
		found[sf.Definition.ID] = sf
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get_many", "", err)
	}
	return found, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*StoredFlag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT definition, version, created_at, updated_at FROM flags ORDER BY id`)
	if err != nil {
		return nil, storageErr("list", "", err)
	}
	defer rows.Close()

	var out []*StoredFlag
	for rows.Next() {
		sf, err := scanStored(rows)
		if err != nil {
			return nil, storageErr("list", "", err)
		}
		// Filtering happens in-process so filter semantics stay identical
		// across backends.
		if filter.Matches(sf) {
			out = append(out, sf)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "", err)
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, def *flag.Definition) (*StoredFlag, error) {
	if err := flag.Validate(def); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, storageErr("create", def.ID, err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO flags (id, definition, version, created_at, updated_at)
		 VALUES ($1, $2, 1, now(), now())
		 RETURNING definition, version, created_at, updated_at`,
		string(def.ID), raw)
	sf, err := scanStored(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, storageErr("create", def.ID, err)
	}
	return sf, nil
}

func (s *PostgresStore) Update(ctx context.Context, def *flag.Definition, expectedVersion int64) (*StoredFlag, error) {
	if err := flag.Validate(def); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, storageErr("update", def.ID, err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE flags SET definition = $2, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $3
		 RETURNING definition, version, created_at, updated_at`,
		string(def.ID), raw, expectedVersion)
	sf, err := scanStored(row)
	if err == nil {
		return sf, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, storageErr("update", def.ID, err)
	}

	// No row updated: tell a missing flag apart from a stale version.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM flags WHERE id = $1)`, string(def.ID)).Scan(&exists); err != nil {
		return nil, storageErr("update", def.ID, err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrVersionConflict
}

func (s *PostgresStore) Delete(ctx context.Context, id flag.ID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flags WHERE id = $1`, string(id))
	if err != nil {
		return storageErr("delete", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetModifiedSince(ctx context.Context, since time.Time) ([]*StoredFlag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT definition, version, created_at, updated_at FROM flags
		 WHERE updated_at > $1 ORDER BY updated_at`, since)
	if err != nil {
		return nil, storageErr("modified_since", "", err)
	}
	defer rows.Close()

	var out []*StoredFlag
	for rows.Next() {
		sf, err := scanStored(rows)
		if err != nil {
			return nil, storageErr("modified_since", "", err)
		}
		out = append(out, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("modified_since", "", err)
	}
	return out, nil
}

func scanStored(row pgx.Row) (*StoredFlag, error) {
	var (
		raw []byte
		sf  StoredFlag
	)
	if err := row.Scan(&raw, &sf.Version, &sf.CreatedAt, &sf.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &sf.Definition); err != nil {
		return nil, err
	}
	return &sf, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
