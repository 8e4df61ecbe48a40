// Package sqlstore persists callback delivery outcomes with bun.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-audio-relay/core"
)

// CallbackLedgerStore is the write-mostly audit trail for inbound
// provider callbacks. Reads happen through operator tooling, so the
// store surface is Record plus retention pruning.
type CallbackLedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*callbackDeliveryRecord]
}

func NewCallbackLedgerStore(db *bun.DB) (*CallbackLedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*callbackDeliveryRecord](db, callbackDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid callback ledger repository wiring: %w", err)
		}
	}
	return &CallbackLedgerStore{db: db, repo: repo}, nil
}

func (s *CallbackLedgerStore) Record(ctx context.Context, delivery core.CallbackDelivery) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: callback ledger store is not configured")
	}
	id := strings.TrimSpace(delivery.ID)
	if id == "" {
		id = uuid.NewString()
	}
	outcome := strings.TrimSpace(delivery.Outcome)
	if outcome == "" {
		outcome = core.CallbackOutcomeUnmatched
	}
	createdAt := delivery.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	record := &callbackDeliveryRecord{
		ID:        id,
		State:     strings.TrimSpace(delivery.State),
		Outcome:   outcome,
		HasCode:   delivery.HasCode,
		Payload:   copyAnyMap(delivery.Payload),
		CreatedAt: createdAt,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: record callback delivery: %w", err)
	}
	return nil
}

func (s *CallbackLedgerStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: callback ledger store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*callbackDeliveryRecord)(nil)).
		Where("created_at < ?", olderThan.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: prune callback deliveries: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return deleted, nil
}

func copyAnyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
