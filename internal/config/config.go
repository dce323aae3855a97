// Package config parses the flag/env configuration for the two long-running
// EMS processes, brokerd and emsd.
//
// Grounded on the teacher's internal/config/config.go: the same
// flag.*Var-bound-to-env-helper pattern, one Config struct per binary.
package config

import (
	"flag"
	"os"
	"strconv"
)

// BrokerdConfig holds brokerd's configuration: it owns the feed bus, the
// simulated broker adapter, and the persistence/archival side of the
// system.
type BrokerdConfig struct {
	// Server
	WSPort int
	Host   string

	// Broker identity
	BrokerName string

	// Database
	MongoURI      string
	RetentionDays int

	// Simulation. Seed is parsed but nothing reads it: the simulated
	// adapter seeds every symbol's generator from the clock.
	Seed int64

	// S3 archiver (opt-in: only active when S3Bucket is set)
	S3Bucket             string
	S3Region             string
	S3Prefix             string
	ArchiveDir           string
	ArchiveMaxGB         int
	ArchiveIntervalHours int
	ArchiveAfterHours    int
}

// EMSConfig holds emsd's configuration: it dials a brokerd process's feed
// and trades endpoints and exposes the client-facing EMS session RPC.
type EMSConfig struct {
	// Server
	WSPort int
	Host   string

	// Upstream brokerd
	BrokerdURL string
	BrokerName string

	// Database (audit trail only)
	MongoURI      string
	RetentionDays int

	// Sessions
	SubscriberThrottleHz float64
	SendBufferSize       int
}

// LoadBrokerd parses brokerd's configuration from flags and environment.
func LoadBrokerd() *BrokerdConfig {
	c := &BrokerdConfig{}

	flag.IntVar(&c.WSPort, "port", envInt("BROKERD_PORT", 8200), "WebSocket server port")
	flag.StringVar(&c.Host, "host", envStr("BROKERD_HOST", "0.0.0.0"), "Listen host")
	flag.StringVar(&c.BrokerName, "broker-name", envStr("BROKER_NAME", "sim"), "Broker identity this process serves")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", "mongodb://localhost:27017/ems"), "MongoDB connection URI")
	flag.IntVar(&c.RetentionDays, "audit-retention", envInt("AUDIT_RETENTION_DAYS", 30), "Audit log retention in days (0 = keep forever)")

	flag.StringVar(&c.S3Bucket, "s3-bucket", envStr("S3_BUCKET", ""), "S3 bucket for archival (empty = disabled)")
	flag.StringVar(&c.S3Region, "s3-region", envStr("S3_REGION", "us-east-1"), "AWS region for S3")
	flag.StringVar(&c.S3Prefix, "s3-prefix", envStr("S3_PREFIX", "ems"), "S3 key prefix for archived documents")
	flag.StringVar(&c.ArchiveDir, "archive-dir", envStr("ARCHIVE_DIR", "./archive"), "Local directory for archived batches")
	flag.IntVar(&c.ArchiveMaxGB, "archive-max-gb", envInt("ARCHIVE_MAX_GB", 5), "Local archive size budget in GB before rotation")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval", envInt("ARCHIVE_INTERVAL_HOURS", 6), "Hours between archive runs")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after", envInt("ARCHIVE_AFTER_HOURS", 24), "Archive documents older than this many hours")

	flag.Int64Var(&c.Seed, "seed", envInt64("BROKERD_SEED", 0), "PRNG seed (not read by the simulated adapter, which seeds from the clock)")

	flag.Parse()

	return c
}

// LoadEMS parses emsd's configuration from flags and environment.
func LoadEMS() *EMSConfig {
	c := &EMSConfig{}

	flag.IntVar(&c.WSPort, "port", envInt("EMSD_PORT", 8300), "WebSocket server port")
	flag.StringVar(&c.Host, "host", envStr("EMSD_HOST", "0.0.0.0"), "Listen host")

	flag.StringVar(&c.BrokerdURL, "brokerd-url", envStr("BROKERD_URL", "ws://localhost:8200"), "Upstream brokerd base URL")
	flag.StringVar(&c.BrokerName, "broker-name", envStr("BROKER_NAME", "sim"), "Broker name reported by the REST API")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", "mongodb://localhost:27017/ems"), "MongoDB connection URI")
	flag.IntVar(&c.RetentionDays, "audit-retention", envInt("AUDIT_RETENTION_DAYS", 30), "Audit log retention in days (0 = keep forever)")

	flag.Float64Var(&c.SubscriberThrottleHz, "throttle-hz", envFloat("FEED_THROTTLE_HZ", 0), "Per-subscriber feed throttle in Hz (0 = unthrottled)")
	flag.IntVar(&c.SendBufferSize, "send-buffer", envInt("SEND_BUFFER", 256), "Per-client send buffer size")

	flag.Parse()

	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
