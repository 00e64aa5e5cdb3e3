package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/goccy/go-json"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var log = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

const (
	fileExt         = ".sqlite"
	samplesPerStore = 100
	versionKey      = "version"
)

// Tables:
//
//	ddoc_meta(key, value)                                   PRIMARY KEY (key)
//	ddoc_stores(name, key_path, auto_increment, seq, indexes) PRIMARY KEY (name)
//	ddoc_records(store, key, value)                         PRIMARY KEY (store, key)
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ddoc_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ddoc_stores (
		name           TEXT PRIMARY KEY,
		key_path       TEXT NOT NULL,
		auto_increment INTEGER NOT NULL,
		seq            INTEGER NOT NULL DEFAULT 0,
		indexes        TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ddoc_records (
		store TEXT NOT NULL,
		key   TEXT NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (store, key)
	) WITHOUT ROWID`,
}

// --------------------------------------------------------------------------
// Opener
// --------------------------------------------------------------------------

// Options configures the sqlite engine
type Options struct {
	Dir       string // Directory of the database files (<Dir>/<name>.sqlite)
	BusyWaitM int    // busy_timeout in milliseconds (0 = 5000)
}

type opener struct {
	opts Options
}

// NewOpener creates an engine that keeps every database in its own SQLite
// file. The handle uses a single connection: transactions are executed one
// after another, which gives read-only transactions a trivially consistent
// view and serializes writers.
func NewOpener(opts *Options) db.Opener {
	o := &opener{}
	if opts != nil {
		o.opts = *opts
	}
	if o.opts.BusyWaitM == 0 {
		o.opts.BusyWaitM = 5000
	}
	return o
}

func (o *opener) Implementation() db.Implementation {
	return db.ImplSQLite
}

func (o *opener) dsn(name string) (string, error) {
	params := "?_busy_timeout=" + strconv.Itoa(o.opts.BusyWaitM) + "&_txlock=immediate&_journal_mode=WAL"
	if o.opts.Dir != "" {
		if err := os.MkdirAll(o.opts.Dir, 0o755); err != nil {
			return "", errors.Wrap(err, "creating data directory")
		}
	}
	return "file:" + filepath.Join(o.opts.Dir, name+fileExt) + params, nil
}

func (o *opener) Open(ctx context.Context, name string, version uint64, upgrade db.UpgradeFunc) (db.ObjectDB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := db.ValidateName(name); err != nil {
		return nil, errors.Wrapf(err, "database name %q", name)
	}
	if version == 0 {
		return nil, errors.Wrap(db.ErrVersion, "version must be at least 1")
	}

	dsn, err := o.dsn(name)
	if err != nil {
		return nil, err
	}
	log.Debugf("opening %s (version %d)", name, version)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening storage")
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	h := &handle{name: name, dsn: dsn, sqlDB: sqlDB}
	if err := h.init(ctx, version, upgrade); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return h, nil
}

// --------------------------------------------------------------------------
// Handle (db.ObjectDB)
// --------------------------------------------------------------------------

type handle struct {
	name  string
	dsn   string
	sqlDB *sql.DB

	// version and catalog are only written by init
	version uint64
	catalog catalog

	closed atomic.Bool
}

func (h *handle) init(ctx context.Context, version uint64, upgrade db.UpgradeFunc) error {
	for _, stmt := range schema {
		if _, err := h.sqlDB.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "initializing")
		}
	}

	sqlTx, err := h.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning upgrade transaction")
	}
	defer func() { _ = sqlTx.Rollback() }()

	var current uint64
	var raw string
	switch err := sqlTx.QueryRow(`SELECT value FROM ddoc_meta WHERE key = ?`, versionKey).Scan(&raw); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return errors.Wrap(err, "reading version")
	default:
		if current, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return errors.Wrap(err, "parsing version")
		}
	}
	if version < current {
		return errors.Wrapf(db.ErrVersion, "requested %d, stored %d", version, current)
	}

	cat, err := loadCatalog(sqlTx)
	if err != nil {
		return err
	}

	if version > current {
		t := &tx{handle: h, sqlTx: sqlTx, mode: db.ReadWrite, upgrade: true, catalog: cat.clone()}
		if upgrade != nil {
			if err := upgrade(t, current, version); err != nil {
				return err
			}
		}
		cat = t.catalog
		if err := saveCatalog(sqlTx, cat); err != nil {
			return err
		}
		if _, err := sqlTx.Exec(
			`INSERT INTO ddoc_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			versionKey, strconv.FormatUint(version, 10),
		); err != nil {
			return errors.Wrap(err, "saving version")
		}
		current = version
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "committing upgrade")
	}
	// the stores now have catalog rows, later counters go through ddoc_stores
	for _, meta := range cat {
		meta.created = false
	}
	h.version = current
	h.catalog = cat
	return nil
}

func (h *handle) Name() string               { return h.name }
func (h *handle) Version() uint64            { return h.version }
func (h *handle) ObjectStoreNames() []string { return h.catalog.names() }

// Begin starts a transaction on the single connection. It waits for the
// running transaction to finish, or for ctx to be done.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *handle) Begin(ctx context.Context, scope []string, mode db.TxMode) (db.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.closed.Load() {
		return nil, db.ErrClosed
	}

	inScope := make(map[string]bool, len(scope))
	for _, name := range scope {
		if _, ok := h.catalog[name]; !ok {
			return nil, errors.Wrapf(db.ErrStoreNotFound, "%q", name)
		}
		inScope[name] = true
	}

	sqlTx, err := h.sqlDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: mode == db.ReadOnly})
	if err != nil {
		if h.closed.Load() {
			return nil, db.ErrClosed
		}
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return &tx{handle: h, sqlTx: sqlTx, mode: mode, scope: inScope, catalog: h.catalog}, nil
}

func (h *handle) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

const supportedFeatures = db.FeatureTransactions |
	db.FeatureUpgrade |
	db.FeatureIndexes |
	db.FeatureAutoIncrement |
	db.FeatureDurable

// GetInfo returns statistics about the database. SizeBytes is computed from
// the page count reported by SQLite.
func (h *handle) GetInfo() db.DatabaseInfo {
	ctx := context.Background()
	var pageCount, pageSize int
	_ = h.sqlDB.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount)
	_ = h.sqlDB.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize)

	names := h.catalog.names()
	storeSizes := make([]float64, len(names))
	histogram := util.NewSizeHistogram()
	for i, name := range names {
		var n int
		_ = h.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM ddoc_records WHERE store = ?`, name).Scan(&n)
		storeSizes[i] = float64(n)

		rows, err := h.sqlDB.QueryContext(ctx,
			`SELECT length(key) + length(value) FROM ddoc_records WHERE store = ? LIMIT ?`, name, samplesPerStore)
		if err != nil {
			continue
		}
		for rows.Next() {
			var size int
			if rows.Scan(&size) == nil {
				histogram.AddSample(size)
			}
		}
		_ = rows.Close()
	}

	version, _, _ := sqlite3.Version()
	meta := &struct {
		Version           uint64                 `json:"version"`
		SQLiteVersion     string                 `json:"sqlite_version"`
		StoreCount        int                    `json:"store_count"`
		StoreDistribution util.DistributionStats `json:"store_distribution"`
		MedianRecordSize  int                    `json:"median_record_size"`
		PageCount         int                    `json:"page_count"`
	}{
		Version:           h.version,
		SQLiteVersion:     version,
		StoreCount:        len(names),
		StoreDistribution: util.NewDistributionStats(storeSizes),
		MedianRecordSize:  histogram.MedianEstimate(),
		PageCount:         pageCount,
	}

	return db.DatabaseInfo{
		SizeBytes:         pageCount * pageSize,
		DbType:            db.ImplSQLite,
		SupportedFeatures: supportedFeatures.Features(),
		Metadata:          meta,
	}
}

func (h *handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Wrap(h.sqlDB.Close(), "closing storage")
}

// --------------------------------------------------------------------------
// Catalog
// --------------------------------------------------------------------------

type storeMeta struct {
	Name    string
	Options db.StoreOptions
	Seq     uint64
	Indexes map[string]db.IndexInfo
	created bool // created by the running upgrade
}

type catalog map[string]*storeMeta

func (c catalog) clone() catalog {
	out := make(catalog, len(c))
	for name, meta := range c {
		indexes := make(map[string]db.IndexInfo, len(meta.Indexes))
		for k, v := range meta.Indexes {
			indexes[k] = v
		}
		out[name] = &storeMeta{Name: meta.Name, Options: meta.Options, Seq: meta.Seq, Indexes: indexes}
	}
	return out
}

func (c catalog) names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func loadCatalog(sqlTx *sql.Tx) (catalog, error) {
	rows, err := sqlTx.Query(`SELECT name, key_path, auto_increment, seq, indexes FROM ddoc_stores`)
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog")
	}
	defer rows.Close()

	cat := make(catalog)
	for rows.Next() {
		var (
			meta    storeMeta
			indexes string
		)
		if err := rows.Scan(&meta.Name, &meta.Options.KeyPath, &meta.Options.AutoIncrement, &meta.Seq, &indexes); err != nil {
			return nil, errors.Wrap(err, "reading catalog")
		}
		if err := json.Unmarshal([]byte(indexes), &meta.Indexes); err != nil {
			return nil, errors.Wrapf(err, "decoding indexes of %q", meta.Name)
		}
		if meta.Indexes == nil {
			meta.Indexes = make(map[string]db.IndexInfo)
		}
		cat[meta.Name] = &meta
	}
	return cat, errors.Wrap(rows.Err(), "reading catalog")
}

// saveCatalog writes store declarations. The seq column of existing stores
// is owned by Add and left untouched.
func saveCatalog(sqlTx *sql.Tx, cat catalog) error {
	for _, name := range cat.names() {
		meta := cat[name]
		indexes, err := json.Marshal(meta.Indexes)
		if err != nil {
			return errors.Wrapf(err, "encoding indexes of %q", name)
		}
		_, err = sqlTx.Exec(
			`INSERT INTO ddoc_stores (name, key_path, auto_increment, seq, indexes) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET indexes = excluded.indexes`,
			name, meta.Options.KeyPath, meta.Options.AutoIncrement, meta.Seq, string(indexes),
		)
		if err != nil {
			return errors.Wrapf(err, "saving catalog entry %q", name)
		}
	}
	return nil
}
