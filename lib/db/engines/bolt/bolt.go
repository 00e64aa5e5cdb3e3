package bolt

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/goccy/go-json"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
	bbolt "go.etcd.io/bbolt"
)

var log = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	fileExt         = ".bolt"
	samplesPerStore = 100
	defaultTimeout  = time.Second
)

var (
	metaBucket   = []byte("__meta")   // schema version and store catalog
	storesBucket = []byte("__stores") // one nested bucket per object store
	versionKey   = []byte("version")
	catalogKey   = []byte("catalog")
)

// --------------------------------------------------------------------------
// Catalog
// --------------------------------------------------------------------------

// storeMeta is the persisted declaration of one object store
type storeMeta struct {
	Name    string                  `json:"name"`
	Options db.StoreOptions         `json:"options"`
	Indexes map[string]db.IndexInfo `json:"indexes"`
}

type catalog map[string]*storeMeta

func (c catalog) clone() catalog {
	out := make(catalog, len(c))
	for name, meta := range c {
		indexes := make(map[string]db.IndexInfo, len(meta.Indexes))
		for k, v := range meta.Indexes {
			indexes[k] = v
		}
		out[name] = &storeMeta{Name: meta.Name, Options: meta.Options, Indexes: indexes}
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

// --------------------------------------------------------------------------
// Opener
// --------------------------------------------------------------------------

// Options configures the bolt engine
type Options struct {
	Dir     string        // Directory of the database files (<Dir>/<name>.bolt)
	Timeout time.Duration // How long Open waits for the file lock (0 = 1s)
	NoSync  bool          // Skip fsync on commit, only for tests

	// InitialMmapSize is the initial size of the memory map in bytes. A
	// commit that grows the file past the map has to remap it and waits for
	// all open read-only transactions to finish.
	InitialMmapSize int
}

type opener struct {
	opts Options
}

// NewOpener creates an engine that stores every database in its own bbolt
// file. A file can only be opened by one handle at a time; a second Open of
// the same name fails after Options.Timeout.
func NewOpener(opts *Options) db.Opener {
	o := &opener{}
	if opts != nil {
		o.opts = *opts
	}
	if o.opts.Timeout == 0 {
		o.opts.Timeout = defaultTimeout
	}
	return o
}

func (o *opener) Implementation() db.Implementation {
	return db.ImplBolt
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

	if o.opts.Dir != "" {
		if err := os.MkdirAll(o.opts.Dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating data directory")
		}
	}
	path := filepath.Join(o.opts.Dir, name+fileExt)

	log.Debugf("opening %s (version %d)", path, version)
	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout:         o.opts.Timeout,
		NoSync:          o.opts.NoSync,
		InitialMmapSize: o.opts.InitialMmapSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening storage")
	}

	h := &handle{name: name, path: path, bdb: bdb}
	if err := h.init(version, upgrade); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return h, nil
}

// --------------------------------------------------------------------------
// Handle (db.ObjectDB)
// --------------------------------------------------------------------------

type handle struct {
	name string
	path string
	bdb  *bbolt.DB

	// version and catalog are only written by init, before the handle is
	// returned from Open
	version uint64
	catalog catalog

	closed atomic.Bool
}

// init reads the schema version and catalog and runs the upgrade, all in one
// write transaction.
func (h *handle) init(version uint64, upgrade db.UpgradeFunc) error {
	btx, err := h.bdb.Begin(true)
	if err != nil {
		return errors.Wrap(err, "beginning upgrade transaction")
	}
	defer func() { _ = btx.Rollback() }()

	meta, err := btx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return errors.Wrap(err, "initializing")
	}
	if _, err := btx.CreateBucketIfNotExists(storesBucket); err != nil {
		return errors.Wrap(err, "initializing")
	}

	var current uint64
	if raw := meta.Get(versionKey); raw != nil {
		current = binary.BigEndian.Uint64(raw)
	}
	if version < current {
		return errors.Wrapf(db.ErrVersion, "requested %d, stored %d", version, current)
	}

	cat := make(catalog)
	if raw := meta.Get(catalogKey); raw != nil {
		if err := json.Unmarshal(raw, &cat); err != nil {
			return errors.Wrap(err, "decoding catalog")
		}
	}

	if version > current {
		t := &tx{handle: h, btx: btx, mode: db.ReadWrite, upgrade: true, catalog: cat.clone()}
		if upgrade != nil {
			if err := upgrade(t, current, version); err != nil {
				return err
			}
		}
		cat = t.catalog

		raw, err := json.Marshal(cat)
		if err != nil {
			return errors.Wrap(err, "encoding catalog")
		}
		if err := meta.Put(catalogKey, raw); err != nil {
			return errors.Wrap(err, "saving catalog")
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], version)
		if err := meta.Put(versionKey, v[:]); err != nil {
			return errors.Wrap(err, "saving version")
		}
		current = version
	}

	if err := btx.Commit(); err != nil {
		return errors.Wrap(err, "committing upgrade")
	}
	h.version = current
	h.catalog = cat
	return nil
}

func (h *handle) Name() string               { return h.name }
func (h *handle) Version() uint64            { return h.version }
func (h *handle) ObjectStoreNames() []string { return h.catalog.names() }

// Begin starts a bbolt transaction. bbolt allows one writer and any number
// of readers; readers see the state of the last commit before they began.
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

	btx, err := h.bdb.Begin(mode == db.ReadWrite)
	if err != nil {
		if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
			return nil, db.ErrClosed
		}
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return &tx{handle: h, btx: btx, mode: mode, scope: inScope, catalog: h.catalog}, nil
}

func (h *handle) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

const supportedFeatures = db.FeatureTransactions |
	db.FeatureUpgrade |
	db.FeatureIndexes |
	db.FeatureAutoIncrement |
	db.FeatureDurable |
	db.FeatureParallelReads

// GetInfo returns statistics about the database. SizeBytes is the size of
// the data file as seen by a read transaction.
func (h *handle) GetInfo() db.DatabaseInfo {
	histogram := util.NewSizeHistogram()
	names := h.catalog.names()
	storeSizes := make([]float64, len(names))
	var sizeBytes int64

	_ = h.bdb.View(func(btx *bbolt.Tx) error {
		sizeBytes = btx.Size()
		stores := btx.Bucket(storesBucket)
		for i, name := range names {
			b := stores.Bucket([]byte(name))
			if b == nil {
				continue
			}
			storeSizes[i] = float64(b.Stats().KeyN)
			sampled := 0
			c := b.Cursor()
			for k, v := c.First(); k != nil && sampled < samplesPerStore; k, v = c.Next() {
				histogram.AddSample(len(k) + len(v))
				sampled++
			}
		}
		return nil
	})

	stats := h.bdb.Stats()
	meta := &struct {
		Version           uint64                 `json:"version"`
		Path              string                 `json:"path"`
		StoreCount        int                    `json:"store_count"`
		StoreDistribution util.DistributionStats `json:"store_distribution"`
		MedianRecordSize  int                    `json:"median_record_size"`
		FreePages         int                    `json:"free_pages"`
		OpenReadTx        int                    `json:"open_read_tx"`
	}{
		Version:           h.version,
		Path:              h.path,
		StoreCount:        len(names),
		StoreDistribution: util.NewDistributionStats(storeSizes),
		MedianRecordSize:  histogram.MedianEstimate(),
		FreePages:         stats.FreePageN,
		OpenReadTx:        stats.OpenTxN,
	}

	return db.DatabaseInfo{
		SizeBytes:         int(sizeBytes),
		DbType:            db.ImplBolt,
		SupportedFeatures: supportedFeatures.Features(),
		Metadata:          meta,
	}
}

// Close closes the data file. It waits for running transactions.
func (h *handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Wrap(h.bdb.Close(), "closing storage")
}
