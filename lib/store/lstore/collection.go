package lstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/query"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/VictoriaMetrics/metrics"
)

// collection runs every operation in its own transaction scoped to the one
// object store backing the collection.
type collection struct {
	name string
	conn *Connection
	ids  store.IDGenerator
}

func (c *collection) Name() string {
	return c.name
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (c *collection) InsertOne(ctx context.Context, doc document.Document) (res store.InsertOneResult, err error) {
	defer c.observe("insert_one", time.Now(), &err)

	if doc == nil {
		return res, store.NewError(store.RetCInvalidOperation, "cannot insert a nil document")
	}
	id, ok := doc.ID()
	switch {
	case ok:
	case doc.HasID():
		return res, store.NewError(store.RetCInvalidOperation, "_id must be a string")
	default:
		if id, err = c.ids.NewID(); err != nil {
			return res, err
		}
	}

	record := document.Encode(doc.WithID(id))
	err = c.run(ctx, db.ReadWrite, func(s db.ObjectStore) error {
		_, err := s.Add(id, record)
		return err
	})
	if err != nil {
		return res, c.wrap(err, "inserting %q", id)
	}
	return store.InsertOneResult{InsertedID: id}, nil
}

func (c *collection) UpdateOne(ctx context.Context, match query.Filter, update store.Update) (res store.UpdateResult, err error) {
	defer c.observe("update_one", time.Now(), &err)

	id, err := matchID(match)
	if err != nil {
		return res, err
	}
	if v, ok := update.Set[document.IDField]; ok && !document.Equal(v, document.String(id)) {
		return res, store.NewError(store.RetCInvalidOperation, "$set must not change _id")
	}

	err = c.run(ctx, db.ReadWrite, func(s db.ObjectStore) error {
		existing, found, err := load(s, id)
		if err != nil || !found {
			return err
		}
		merged := store.ApplyUpdate(existing, update)
		if err := s.Put(id, document.Encode(merged)); err != nil {
			return err
		}
		res = store.UpdateResult{MatchedCount: 1, ModifiedCount: 1}
		return nil
	})
	if err != nil {
		return store.UpdateResult{}, c.wrap(err, "updating %q", id)
	}
	return res, nil
}

func (c *collection) DeleteOne(ctx context.Context, match query.Filter) (res store.DeleteResult, err error) {
	defer c.observe("delete_one", time.Now(), &err)

	id, err := matchID(match)
	if err != nil {
		return res, err
	}

	err = c.run(ctx, db.ReadWrite, func(s db.ObjectStore) error {
		_, found, err := s.Get(id)
		if err != nil || !found {
			return err
		}
		if err := s.Delete(id); err != nil {
			return err
		}
		res.DeletedCount = 1
		return nil
	})
	if err != nil {
		return store.DeleteResult{}, c.wrap(err, "deleting %q", id)
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Find scans the whole collection. Declared indexes are not consulted.
func (c *collection) Find(ctx context.Context, filter query.Filter) (cur *store.Cursor, err error) {
	defer c.observe("find", time.Now(), &err)

	// Validate compiles patterns in place, keep the caller's filter untouched
	filter = append(query.Filter(nil), filter...)
	if err := filter.Validate(); err != nil {
		return nil, store.WrapError(store.RetCInvalidOperation, err, "invalid filter")
	}

	var docs []document.Document
	err = c.run(ctx, db.ReadOnly, func(s db.ObjectStore) error {
		records, err := s.GetAll()
		if err != nil {
			return err
		}
		for _, r := range records {
			doc, err := document.Decode(r.Value)
			if err != nil {
				return fmt.Errorf("record %q: %w", r.Key, err)
			}
			if filter.Match(doc) {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, c.wrap(err, "scanning")
	}
	return store.NewCursor(docs), nil
}

func (c *collection) FindOne(ctx context.Context, filter query.Filter) (document.Document, bool, error) {
	cur, err := c.Find(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	doc, ok := cur.First()
	return doc, ok, nil
}

func (c *collection) CountDocuments(ctx context.Context, filter query.Filter) (int, error) {
	cur, err := c.Find(ctx, filter)
	if err != nil {
		return 0, err
	}
	return cur.Len(), nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// run executes fn in a transaction on the collection's object store and
// commits if fn succeeds.
func (c *collection) run(ctx context.Context, mode db.TxMode, fn func(s db.ObjectStore) error) error {
	h, err := c.conn.Connect(ctx)
	if err != nil {
		return err
	}
	tx, err := h.Begin(ctx, []string{c.name}, mode)
	if err != nil {
		return err
	}
	s, err := tx.ObjectStore(c.name)
	if err != nil {
		_ = tx.Abort()
		return err
	}
	if err := fn(s); err != nil {
		if abortErr := tx.Abort(); abortErr != nil {
			log.Warningf("aborting transaction on %q: %v", c.name, abortErr)
		}
		return err
	}
	return tx.Commit()
}

// wrap converts an engine error into a *store.Error, keeping the engine
// error as the cause.
func (c *collection) wrap(err error, format string, args ...any) error {
	var se *store.Error
	if errors.As(err, &se) {
		return se
	}

	code := store.RetCTransactionError
	switch {
	case errors.Is(err, db.ErrKeyExists):
		code = store.RetCDuplicateKey
	case errors.Is(err, db.ErrStoreNotFound), errors.Is(err, db.ErrNotInScope):
		code = store.RetCInvalidOperation
	case errors.Is(err, db.ErrClosed):
		code = store.RetCConnectionError
	case errors.Is(err, document.ErrCorrupt):
		code = store.RetCInternalError
	}
	return store.WrapError(code, err, "%s: %s", c.name, fmt.Sprintf(format, args...))
}

// observe records the duration and outcome of an operation.
func (c *collection) observe(op string, start time.Time, err *error) {
	metrics.GetOrCreateSummary(fmt.Sprintf(`ddoc_store_op_duration_seconds{op=%q}`, op)).UpdateDuration(start)
	metrics.GetOrCreateCounter(fmt.Sprintf(`ddoc_store_ops_total{op=%q,collection=%q}`, op, c.name)).Inc()
	if *err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`ddoc_store_errors_total{op=%q,collection=%q}`, op, c.name)).Inc()
		log.Debugf("%s on %q failed: %v", op, c.name, *err)
	}
}

// matchID extracts the _id of an update or delete match. Selecting by any
// other field is not supported.
func matchID(match query.Filter) (string, error) {
	id, ok := match.IDEquals()
	if !ok || len(match) != 1 {
		return "", store.NewError(store.RetCInvalidOperation, "match must select a single _id")
	}
	return id, nil
}

func load(s db.ObjectStore, id string) (document.Document, bool, error) {
	raw, found, err := s.Get(id)
	if err != nil || !found {
		return nil, false, err
	}
	doc, err := document.Decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("record %q: %w", id, err)
	}
	return doc, true, nil
}
