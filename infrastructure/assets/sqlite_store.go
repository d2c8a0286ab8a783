// Package assets persists generated media records in SQLite.
package assets

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"flowstudio/application/ports"
	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
)

//go:embed schema.sql
var schemaSQL string

const (
	table                = "assets"
	currentSchemaVersion = 1
)

// SQLiteStore implements ports.AssetService on a single SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	metrics *observability.Collector
	logger  *zap.Logger
	now     func() time.Time
}

var _ ports.AssetService = (*SQLiteStore)(nil)

// Open creates or opens the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string, metrics *observability.Collector, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Asset store opened", zap.String("path", path))
	return &SQLiteStore{db: db, metrics: metrics, logger: logger, now: time.Now}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// observe records one database call.
func (s *SQLiteStore) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, pkgerrors.ErrAssetNotFound) {
		status = "error"
	}
	s.metrics.DBOperations.WithLabelValues(op, table, status).Inc()
	s.metrics.DBDuration.WithLabelValues(op, table).Observe(time.Since(start).Seconds())
}

// List returns every asset, newest first.
func (s *SQLiteStore) List(ctx context.Context) (assets []ports.Asset, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_id, name, type, url, created_at, updated_at
		FROM assets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list assets", err)
	}
	defer rows.Close()

	assets = []ports.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list assets", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError("list assets", err)
	}
	return assets, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (asset ports.Asset, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx, `
		SELECT id, node_id, name, type, url, created_at, updated_at
		FROM assets WHERE id = ?`, id)
	asset, err = scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Asset{}, pkgerrors.ErrAssetNotFound.New().WithDetail("asset_id", id)
	}
	if err != nil {
		return ports.Asset{}, pkgerrors.NewDatabaseError("get asset", err)
	}
	return asset, nil
}

// Save inserts asset, assigning an id when it has none, and returns the
// stored record.
func (s *SQLiteStore) Save(ctx context.Context, asset ports.Asset) (_ ports.Asset, err error) {
	defer func(start time.Time) { s.observe("save", start, err) }(time.Now())

	if asset.URL == "" {
		return ports.Asset{}, pkgerrors.NewValidationError("asset url is required")
	}
	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}
	now := s.now().UTC()
	asset.CreatedAt, asset.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (id, node_id, name, type, url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.NodeID, asset.Name, string(asset.Type), asset.URL,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return ports.Asset{}, pkgerrors.NewDatabaseError("save asset", err)
	}

	s.logger.Debug("Asset saved", zap.String("assetID", asset.ID), zap.String("nodeID", asset.NodeID))
	return asset, nil
}

// Update replaces name, url and node link of an existing asset.
func (s *SQLiteStore) Update(ctx context.Context, asset ports.Asset) (err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE assets SET node_id = ?, name = ?, type = ?, url = ?, updated_at = ?
		WHERE id = ?`,
		asset.NodeID, asset.Name, string(asset.Type), asset.URL, s.now().UTC().UnixNano(), asset.ID)
	if err != nil {
		return pkgerrors.NewDatabaseError("update asset", err)
	}
	return requireOne(res, asset.ID)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return pkgerrors.NewDatabaseError("delete asset", err)
	}
	return requireOne(res, id)
}

func requireOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.NewDatabaseError("rows affected", err)
	}
	if n == 0 {
		return pkgerrors.ErrAssetNotFound.New().WithDetail("asset_id", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (ports.Asset, error) {
	var (
		a                ports.Asset
		kind             string
		created, updated int64
	)
	if err := row.Scan(&a.ID, &a.NodeID, &a.Name, &kind, &a.URL, &created, &updated); err != nil {
		return ports.Asset{}, err
	}
	a.Type = valueobjects.NodeType(kind)
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	return a, nil
}
