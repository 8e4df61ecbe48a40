package sqlstore

import (
	"fmt"

	"github.com/uptrace/bun"
)

// NewCallbackLedgerStoreFrom accepts either a *bun.DB or anything that
// exposes one, such as a persistence client.
func NewCallbackLedgerStoreFrom(candidate any) (*CallbackLedgerStore, error) {
	db, err := resolveBunDB(candidate)
	if err != nil {
		return nil, err
	}
	return NewCallbackLedgerStore(db)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client %T", candidate)
	}
}
