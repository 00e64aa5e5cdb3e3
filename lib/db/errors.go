package db

import "errors"

var (
	ErrKeyExists     = errors.New("db: key already exists")
	ErrStoreNotFound = errors.New("db: object store not found")
	ErrStoreExists   = errors.New("db: object store already exists")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrReadOnly      = errors.New("db: transaction is read-only")
	ErrTxDone        = errors.New("db: transaction has already been committed or aborted")
	ErrNotInScope    = errors.New("db: object store is not in the transaction scope")
	ErrVersion       = errors.New("db: requested version is lower than the stored version")
	ErrClosed        = errors.New("db: database is closed")
	ErrInvalidState  = errors.New("db: operation not allowed in this state")
	ErrInvalidName   = errors.New("db: invalid name")
	ErrEmptyKey      = errors.New("db: empty key")
)
