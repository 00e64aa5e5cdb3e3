package maple

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	snapshotExt       = ".maple" // File extension of snapshot files
	samplesPerStore   = 100      // Records sampled per store by GetInfo
	perRecordOverhead = 48       // Estimated bytes per record besides the value
)

// --------------------------------------------------------------------------
// Opener
// --------------------------------------------------------------------------

// Options configures the maple engine
type Options struct {
	// SnapshotDir enables persistence: a database is restored from
	// <SnapshotDir>/<name>.maple when it is first opened and written back
	// when its last handle is closed. Empty means memory only.
	SnapshotDir string
}

// DefaultOptions returns the default maple options (memory only)
func DefaultOptions() *Options {
	return &Options{}
}

type opener struct {
	opts Options
	mu   sync.Mutex                          // Serializes the creation of databases
	dbs  *xsync.MapOf[string, *mapleDatabase] // All databases ever opened by name
}

// NewOpener creates an in-memory engine. Databases live as long as the
// opener, so closing and reopening a database by name keeps its data.
//
// Thread-safety: The returned opener is safe for concurrent use.
func NewOpener(opts *Options) db.Opener {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &opener{
		opts: *opts,
		dbs:  xsync.NewMapOf[string, *mapleDatabase](),
	}
}

func (o *opener) Implementation() db.Implementation {
	return db.ImplMaple
}

func (o *opener) Open(ctx context.Context, name string, version uint64, upgrade db.UpgradeFunc) (db.ObjectDB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := db.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: database name %q", err, name)
	}
	if version == 0 {
		return nil, fmt.Errorf("%w: version must be at least 1", db.ErrVersion)
	}

	database, err := o.loadOrCreate(name)
	if err != nil {
		return nil, err
	}

	// the exclusive lock waits for all running transactions
	database.mu.Lock()
	defer database.mu.Unlock()

	current := database.version
	if version < current {
		return nil, fmt.Errorf("%w: requested %d, stored %d", db.ErrVersion, version, current)
	}

	if version > current {
		t := newUpgradeTx(database)
		if upgrade != nil {
			if err := upgrade(t, current, version); err != nil {
				t.discard()
				return nil, err
			}
		}
		t.apply()
		database.version = version
	}

	database.refs.Add(1)
	return &handle{database: database, opener: o}, nil
}

// loadOrCreate returns the database with the given name, restoring it from a
// snapshot file the first time it is requested.
func (o *opener) loadOrCreate(name string) (*mapleDatabase, error) {
	if database, ok := o.dbs.Load(name); ok {
		return database, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if database, ok := o.dbs.Load(name); ok {
		return database, nil
	}

	database := newDatabase(name)
	if path := o.snapshotPath(name); path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			err = database.Load(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("restore snapshot %s: %w", path, err)
			}
			log.Infof("restored %q from %s", name, path)
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	o.dbs.Store(name, database)
	return database, nil
}

func (o *opener) snapshotPath(name string) string {
	if o.opts.SnapshotDir == "" {
		return ""
	}
	return filepath.Join(o.opts.SnapshotDir, name+snapshotExt)
}

// writeSnapshot saves the database to its snapshot file. The file is written
// to a temporary path first and then renamed.
func (o *opener) writeSnapshot(database *mapleDatabase) error {
	path := o.snapshotPath(database.name)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(o.opts.SnapshotDir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(o.opts.SnapshotDir, database.name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := database.Save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	log.Infof("wrote snapshot of %q to %s", database.name, path)
	return nil
}

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// mapleDatabase is the shared state of one named database
type mapleDatabase struct {
	name string

	// mu is held shared by every transaction and exclusively by upgrades and
	// Load. It guards version and the set of stores.
	mu      sync.RWMutex
	version uint64
	stores  *xsync.MapOf[string, *internal.Store]

	refs atomic.Int64 // Number of open handles
}

func newDatabase(name string) *mapleDatabase {
	return &mapleDatabase{
		name:   name,
		stores: xsync.NewMapOf[string, *internal.Store](),
	}
}

// storeNames returns the sorted store names
//
// Thread-safety: The caller must hold mu.
func (d *mapleDatabase) storeNames() []string {
	names := make([]string, 0, d.stores.Size())
	d.stores.Range(func(name string, _ *internal.Store) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// Handle (db.ObjectDB)
// --------------------------------------------------------------------------

type handle struct {
	database *mapleDatabase
	opener   *opener
	closed   atomic.Bool
}

func (h *handle) Name() string {
	return h.database.name
}

func (h *handle) Version() uint64 {
	h.database.mu.RLock()
	defer h.database.mu.RUnlock()
	return h.database.version
}

func (h *handle) ObjectStoreNames() []string {
	h.database.mu.RLock()
	defer h.database.mu.RUnlock()
	return h.database.storeNames()
}

// Begin starts a transaction. Stores are locked in sorted order to rule out
// lock order inversions between transactions with overlapping scopes.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *handle) Begin(ctx context.Context, scope []string, mode db.TxMode) (db.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.closed.Load() {
		return nil, db.ErrClosed
	}

	d := h.database
	d.mu.RLock()

	names := append([]string(nil), scope...)
	sort.Strings(names)

	t := &tx{
		database: d,
		mode:     mode,
		scope:    make(map[string]*internal.Store, len(names)),
		writes:   make(map[string]map[string]internal.Write),
	}
	for i, name := range names {
		if i > 0 && names[i-1] == name {
			continue
		}
		s, ok := d.stores.Load(name)
		if !ok {
			d.mu.RUnlock()
			return nil, fmt.Errorf("%w: %q", db.ErrStoreNotFound, name)
		}
		t.scope[name] = s
		t.order = append(t.order, s)
	}

	for _, s := range t.order {
		if mode == db.ReadWrite {
			s.Lock.Lock()
		} else {
			s.Lock.RLock()
		}
	}
	return t, nil
}

func (h *handle) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures(h.opener.opts)&feature == feature
}

func supportedFeatures(opts Options) db.Feature {
	features := db.FeatureTransactions |
		db.FeatureUpgrade |
		db.FeatureIndexes |
		db.FeatureAutoIncrement |
		db.FeatureSnapshot |
		db.FeatureParallelReads
	if opts.SnapshotDir != "" {
		features |= db.FeatureDurable
	}
	return features
}

// GetInfo returns statistics about the database. Value sizes are sampled, so
// SizeBytes is an estimate.
func (h *handle) GetInfo() db.DatabaseInfo {
	d := h.database
	d.mu.RLock()
	defer d.mu.RUnlock()

	histogram := util.NewSizeHistogram()
	names := d.storeNames()
	storeSizes := make([]float64, len(names))
	records := 0

	for i, name := range names {
		s, _ := d.stores.Load(name)
		size := s.Records.Size()
		storeSizes[i] = float64(size)
		records += size

		count := 0
		s.Records.Range(func(key string, value []byte) bool {
			histogram.AddSample(len(key) + len(value))
			count++
			return count < samplesPerStore
		})
	}

	avgSize := histogram.AverageSize() + perRecordOverhead
	medianSize := histogram.MedianEstimate() + perRecordOverhead
	// weighted estimate (60% median, 40% average)
	sizeBytes := records * (medianSize*60 + avgSize*40) / 100

	meta := &struct {
		Version           uint64                 `json:"version"`
		StoreCount        int                    `json:"store_count"`
		RecordCount       int                    `json:"record_count"`
		StoreDistribution util.DistributionStats `json:"store_distribution"`
		OpenHandles       int64                  `json:"open_handles"`
		Snapshot          string                 `json:"snapshot,omitempty"`
		Info              string                 `json:"info"`
	}{
		Version:           d.version,
		StoreCount:        len(names),
		RecordCount:       records,
		StoreDistribution: util.NewDistributionStats(storeSizes),
		OpenHandles:       d.refs.Load(),
		Snapshot:          h.opener.snapshotPath(d.name),
		Info:              "SizeBytes is estimated from a sample of the records.",
	}

	return db.DatabaseInfo{
		SizeBytes:         sizeBytes,
		DbType:            db.ImplMaple,
		SupportedFeatures: supportedFeatures(h.opener.opts).Features(),
		Metadata:          meta,
	}
}

// Save writes a snapshot of the committed state (see Snapshotter).
func (h *handle) Save(w io.Writer) error {
	if h.closed.Load() {
		return db.ErrClosed
	}
	return h.database.Save(w)
}

// Load replaces the database state with a snapshot (see Snapshotter).
func (h *handle) Load(r io.Reader) error {
	if h.closed.Load() {
		return db.ErrClosed
	}
	return h.database.Load(r)
}

// Close releases the handle. When the last handle of a database is closed
// and a snapshot directory is configured, the database is written to disk.
func (h *handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if h.database.refs.Add(-1) == 0 {
		return h.opener.writeSnapshot(h.database)
	}
	return nil
}
