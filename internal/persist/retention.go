package persist

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RunRetention periodically deletes audit log entries older than the
// retention period. Blocks until ctx is cancelled. Pass retentionDays <= 0
// to disable.
func RunRetention(ctx context.Context, store *Store, retentionDays int) {
	if retentionDays <= 0 {
		log.Println("persist: audit retention disabled (keep forever)")
		return
	}

	interval := 1 * time.Hour
	log.Printf("persist: audit retention: pruning entries older than %d days every %v", retentionDays, interval)

	prune(ctx, store, retentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(ctx, store, retentionDays)
		}
	}
}

func prune(ctx context.Context, store *Store, retentionDays int) {
	cutoffNS := time.Now().AddDate(0, 0, -retentionDays).UnixNano()

	result, err := store.db.Collection("audit_log").DeleteMany(ctx, bson.M{
		"time_ns": bson.M{"$lt": cutoffNS},
	})
	if err != nil {
		log.Printf("persist: retention prune error: %v", err)
		return
	}

	if result.DeletedCount > 0 {
		log.Printf("persist: retention pruned %d audit entries", result.DeletedCount)
	}
}
