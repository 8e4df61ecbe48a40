package sqlstore

import "github.com/goliatone/go-audio-relay/core"

var _ core.DeliveryLedger = (*CallbackLedgerStore)(nil)
