package cache

import (
	"context"
	"time"
)

// ReceiptCache records gateway receipts for successfully sent
// destinations, keyed by message uid and address, so delivery can be
// confirmed without a store round trip.
type ReceiptCache interface {
	StoreReceipt(ctx context.Context, messageUID, address, remoteMessageID string, sentAt time.Time) error
}
