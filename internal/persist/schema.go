package persist

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates idempotent indexes on all collections.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type idx struct {
		collection string
		model      mongo.IndexModel
	}

	indexes := []idx{
		{
			collection: "audit_log",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "oid", Value: 1}, {Key: "time_ns", Value: 1}},
			},
		},
		{
			collection: "audit_log",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "time_ns", Value: -1}},
			},
		},
		{
			collection: "candles",
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "broker", Value: 1},
					{Key: "symbol", Value: 1},
					{Key: "time_ns", Value: -1},
				},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for _, i := range indexes {
		_, err := db.Collection(i.collection).Indexes().CreateOne(ctx, i.model)
		if err != nil {
			return fmt.Errorf("create index on %s: %w", i.collection, err)
		}
	}

	log.Println("persist: MongoDB indexes ensured")
	return nil
}
