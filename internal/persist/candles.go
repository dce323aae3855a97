package persist

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tradekit/ems/internal/ohlcring"
)

// CandleDoc is one persisted OHLCV bar, keyed by (broker, symbol, time_ns).
type CandleDoc struct {
	Broker string  `bson:"broker"`
	Symbol string  `bson:"symbol"`
	TimeNS int64   `bson:"time_ns"`
	Open   float64 `bson:"open"`
	High   float64 `bson:"high"`
	Low    float64 `bson:"low"`
	Close  float64 `bson:"close"`
	Volume float64 `bson:"volume"`
}

// CandleStore persists closed OHLCV bars and serves them back out for
// backfill_bars (spec.md §4.3), sparing a broker adapter from
// resynthesizing history on every cold start.
type CandleStore struct {
	store *Store
}

// NewCandleStore creates a candle store backed by store.
func NewCandleStore(store *Store) *CandleStore {
	return &CandleStore{store: store}
}

// SaveBar upserts one closed bar for (broker, symbol).
func (c *CandleStore) SaveBar(ctx context.Context, broker, symbol string, bar ohlcring.Bar) error {
	filter := bson.M{"broker": broker, "symbol": symbol, "time_ns": bar.Time}
	update := bson.M{"$set": CandleDoc{
		Broker: broker, Symbol: symbol, TimeNS: bar.Time,
		Open: bar.Open, High: bar.High, Low: bar.Low, Close: bar.Close, Volume: bar.Volume,
	}}
	_, err := c.store.db.Collection("candles").UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("persist: save bar: %w", err)
	}
	return nil
}

// RecentBars returns up to limit of the most recent persisted bars for
// (broker, symbol), oldest first. To backfill a ring with
// ohlcring.Ring.Push(..., prepend=true), push them from the last (newest)
// to the first, since each prepend becomes the new oldest row.
func (c *CandleStore) RecentBars(ctx context.Context, broker, symbol string, limit int) ([]ohlcring.Bar, error) {
	cursor, err := c.store.db.Collection("candles").Find(ctx,
		bson.M{"broker": broker, "symbol": symbol},
		options.Find().SetSort(bson.D{{Key: "time_ns", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("persist: query recent bars: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []CandleDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("persist: decode bars: %w", err)
	}

	bars := make([]ohlcring.Bar, len(docs))
	for i, d := range docs {
		// docs arrive newest-first; reverse into oldest-first while copying.
		src := docs[len(docs)-1-i]
		bars[i] = ohlcring.Bar{Time: src.TimeNS, Open: src.Open, High: src.High, Low: src.Low, Close: src.Close, Volume: src.Volume}
	}
	return bars, nil
}
