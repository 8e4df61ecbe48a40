package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type callbackDeliveryRecord struct {
	bun.BaseModel `bun:"table:relay_callback_deliveries,alias:rcd"`

	ID        string         `bun:"id,pk"`
	State     string         `bun:"state,notnull"`
	Outcome   string         `bun:"outcome,notnull"`
	HasCode   bool           `bun:"has_code,notnull"`
	Payload   map[string]any `bun:"payload,type:jsonb"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
