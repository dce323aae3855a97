// Package archive rotates stale audit-trail and candle-history documents out
// of MongoDB into gzipped NDJSON, uploading each batch to S3 before deleting
// it from the live collections.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// source describes one archivable collection.
type source struct {
	collection string // mongo collection name
	idField    string // bson field used for DeleteMany after a successful upload
	timeField  string // bson field (int64 unix nanos) the cursor walks
	subdir     string // local/S3 key subdirectory
}

var sources = []source{
	{collection: "audit_log", idField: "_id", timeField: "time_ns", subdir: "audit_log"},
	{collection: "candles", idField: "_id", timeField: "time_ns", subdir: "candles"},
}

// Archiver periodically moves old audit/candle documents from MongoDB to
// local gzipped NDJSON files, uploads each batch to S3, then prunes local
// files once the on-disk archive exceeds maxBytes.
type Archiver struct {
	db       *mongo.Database
	dir      string
	maxBytes int64
	interval time.Duration
	maxAge   time.Duration

	s3     *s3.Client
	bucket string
	prefix string
}

// New creates a new Archiver. s3Client may be nil, in which case archiving
// still runs but skips the upload step (local-only, matching the teacher's
// original behavior before S3 was wired in).
func New(db *mongo.Database, dir string, maxGB, intervalHours, afterHours int, s3Client *s3.Client, bucket, prefix string) *Archiver {
	return &Archiver{
		db:       db,
		dir:      dir,
		maxBytes: int64(maxGB) * 1 << 30,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(afterHours) * time.Hour,
		s3:       s3Client,
		bucket:   bucket,
		prefix:   prefix,
	}
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("archiver: dir=%s max=%dGB interval=%v age=%v bucket=%q",
		a.dir, a.maxBytes>>30, a.interval, a.maxAge, a.bucket)

	for _, src := range sources {
		a.cycle(ctx, src)
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, src := range sources {
				a.cycle(ctx, src)
			}
		}
	}
}

func (a *Archiver) cycle(ctx context.Context, src source) {
	cursor, err := a.loadCursor(ctx, src)
	if err != nil {
		log.Printf("archiver: %s: load cursor: %v", src.collection, err)
		return
	}

	cutoffNS := time.Now().Add(-a.maxAge).UnixNano()
	if cursor >= cutoffNS {
		return
	}

	docs, err := a.queryDocs(ctx, src, cursor, cutoffNS)
	if err != nil {
		log.Printf("archiver: %s: query: %v", src.collection, err)
		return
	}
	if len(docs) == 0 {
		a.saveCursor(ctx, src, cutoffNS)
		return
	}

	batches := groupByDay(docs, src.timeField)

	for day, batch := range batches {
		if err := a.writeAndUpload(ctx, src, day, batch); err != nil {
			log.Printf("archiver: %s: write %s: %v", src.collection, day, err)
			return
		}

		if err := a.deleteBatch(ctx, src, batch); err != nil {
			log.Printf("archiver: %s: delete %s: %v", src.collection, day, err)
			return
		}

		log.Printf("archiver: %s: archived %d docs for %s", src.collection, len(batch), day)
	}

	a.saveCursor(ctx, src, cutoffNS)
	a.rotate(src)
}

// rawDoc is a full archived document (every field the collection stored),
// read generically so the archiver doesn't need a struct per collection.
type rawDoc bson.M

func (d rawDoc) id() any {
	return bson.M(d)["_id"]
}

func (d rawDoc) timeNS(field string) int64 {
	switch v := bson.M(d)[field].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	default:
		return 0
	}
}

func (a *Archiver) loadCursor(ctx context.Context, src source) (int64, error) {
	var doc struct {
		ValueNS int64 `bson:"value_ns"`
	}
	key := "archive_cursor:" + src.collection
	err := a.db.Collection("archive_state").FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}
	return doc.ValueNS, nil
}

func (a *Archiver) saveCursor(ctx context.Context, src source, ns int64) {
	key := "archive_cursor:" + src.collection
	_, err := a.db.Collection("archive_state").UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{
			"key":        key,
			"value_ns":   ns,
			"updated_at": time.Now(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		log.Printf("archiver: %s: save cursor: %v", src.collection, err)
	}
}

func (a *Archiver) queryDocs(ctx context.Context, src source, from, to int64) ([]rawDoc, error) {
	filter := bson.M{
		src.timeField: bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: src.timeField, Value: 1}})

	cur, err := a.db.Collection(src.collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", src.collection, err)
	}
	defer cur.Close(ctx)

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", src.collection, err)
	}
	docs := make([]rawDoc, len(raw))
	for i, m := range raw {
		docs[i] = rawDoc(m)
	}
	return docs, nil
}

func groupByDay(docs []rawDoc, timeField string) map[string][]rawDoc {
	batches := make(map[string][]rawDoc)
	for _, d := range docs {
		day := time.Unix(0, d.timeNS(timeField)).UTC().Format("2006/01/02")
		batches[day] = append(batches[day], d)
	}
	return batches
}

// writeAndUpload gzips a batch to dir/<subdir>/YYYY/MM/DD.jsonl.gz, then
// uploads the same bytes to s3://bucket/prefix/<subdir>/YYYY/MM/DD.jsonl.gz
// when an S3 client is configured.
func (a *Archiver) writeAndUpload(ctx context.Context, src source, day string, docs []rawDoc) error {
	relPath := filepath.Join(src.subdir, day+".jsonl.gz")
	path := filepath.Join(a.dir, relPath)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			gz.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if a.s3 != nil && a.bucket != "" {
		key := filepath.ToSlash(filepath.Join(a.prefix, relPath))
		_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return fmt.Errorf("s3 upload %s: %w", key, err)
		}
	}

	return nil
}

func (a *Archiver) deleteBatch(ctx context.Context, src source, docs []rawDoc) error {
	ids := make([]any, len(docs))
	for i, d := range docs {
		ids[i] = d.id()
	}

	_, err := a.db.Collection(src.collection).DeleteMany(ctx, bson.M{
		src.idField: bson.M{"$in": ids},
	})
	if err != nil {
		return fmt.Errorf("delete archived %s: %w", src.collection, err)
	}
	return nil
}

// rotate deletes the oldest local archive files for src until total size is
// under maxBytes. S3 copies are left alone: rotation is a local-disk
// concern, the bucket is the long-term store.
func (a *Archiver) rotate(src source) {
	root := filepath.Join(a.dir, src.subdir)

	type entry struct {
		path string
		size int64
	}

	var files []entry
	var total int64

	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= a.maxBytes {
		return
	}

	// Sort oldest first (path is YYYY/MM/DD so lexicographic = chronological).
	sort.Slice(files, func(i, j int) bool {
		return files[i].path < files[j].path
	})

	for _, f := range files {
		if total <= a.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("archiver: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("archiver: rotated out %s (%d bytes)", f.path, f.size)
	}
}
