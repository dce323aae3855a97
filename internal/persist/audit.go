package persist

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tradekit/ems/internal/wireproto"
)

// AuditEntry is one row of the append-only audit trail: every client
// status and every raw broker event an EMS session produced or consumed.
type AuditEntry struct {
	OID       string         `bson:"oid"`
	Symbol    string         `bson:"symbol"`
	Direction string         `bson:"direction"` // "to_client" or "from_broker"
	Resp      string         `bson:"resp,omitempty"`
	EventKind string         `bson:"event_kind,omitempty"`
	TimeNS    int64          `bson:"time_ns"`
	RecordedAt time.Time     `bson:"recorded_at"`
	Details   map[string]any `bson:"details,omitempty"`
}

// AuditLog appends Status/BrokerdEvent records for later forensic replay.
// It never touches the dark book; it is a write-behind observer only.
type AuditLog struct {
	store *Store
}

// NewAuditLog creates an audit log writer backed by store.
func NewAuditLog(store *Store) *AuditLog {
	return &AuditLog{store: store}
}

// RecordStatus appends a client-bound Status.
func (a *AuditLog) RecordStatus(ctx context.Context, status wireproto.Status) error {
	entry := AuditEntry{
		OID: status.OID, Symbol: status.Symbol, Direction: "to_client",
		Resp: string(status.Resp), TimeNS: status.TimeNS, RecordedAt: time.Now(),
		Details: status.BrokerDetails,
	}
	_, err := a.store.db.Collection("audit_log").InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("persist: record status: %w", err)
	}
	return nil
}

// RecordBrokerEvent appends an inbound broker event.
func (a *AuditLog) RecordBrokerEvent(ctx context.Context, ev wireproto.BrokerdEvent) error {
	entry := AuditEntry{
		OID: ev.OID, Direction: "from_broker", EventKind: string(ev.Kind),
		TimeNS: ev.TimeNS, RecordedAt: time.Now(), Details: ev.Details,
	}
	_, err := a.store.db.Collection("audit_log").InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("persist: record broker event: %w", err)
	}
	return nil
}

// ForOID returns the audit trail for a single order, oldest first,
// exercised by operational tooling reconstructing an order's lifecycle.
func (a *AuditLog) ForOID(ctx context.Context, oid string) ([]AuditEntry, error) {
	cursor, err := a.store.db.Collection("audit_log").Find(ctx,
		bson.M{"oid": oid},
		options.Find().SetSort(bson.D{{Key: "time_ns", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("persist: query audit trail: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []AuditEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("persist: decode audit trail: %w", err)
	}
	return entries, nil
}
