package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/envutil"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
)

// LedgerEntry is the recorded outcome of a completed operation.
type LedgerEntry struct {
	OperationID string          `json:"operation_id"`
	Output      json.RawMessage `json:"output,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Ledger records completed operation outcomes under a deterministic id so
// at-least-once stage execution converges to exactly-once effects. Entries
// expire on TTL; an expired id re-executes, which is safe because every stage
// is an upsert.
type Ledger interface {
	Get(ctx context.Context, operationID string) (*LedgerEntry, error)
	Record(ctx context.Context, operationID string, output any) error
}

// OperationID derives the ledger key for one stage invocation: job id, stage
// name and a digest of the stage input.
func OperationID(jobID, stage string, input []byte) string {
	h := sha256.New()
	_, _ = h.Write([]byte(jobID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(stage))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(input)
	return "op:" + hex.EncodeToString(h.Sum(nil))[:40]
}

type redisLedger struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisLedger returns (nil, nil) when REDIS_ADDR is unset; callers fall
// back to the in-memory ledger.
func NewRedisLedger(log *logger.Logger) (Ledger, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisLedger{
		log: log.With("service", "RedisLedger"),
		rdb: rdb,
		ttl: envutil.Seconds("LEDGER_TTL_SECONDS", 86400),
	}, nil
}

func (l *redisLedger) Get(ctx context.Context, operationID string) (*LedgerEntry, error) {
	raw, err := l.rdb.Get(ctx, operationID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerr.Transient("ledger", "get", err)
	}
	var entry LedgerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Unreadable entries are treated as absent; the stage re-runs.
		l.log.Warn("dropping undecodable ledger entry", "operation_id", operationID, "error", err)
		return nil, nil
	}
	return &entry, nil
}

func (l *redisLedger) Record(ctx context.Context, operationID string, output any) error {
	entry := LedgerEntry{
		OperationID: operationID,
		CompletedAt: time.Now().UTC(),
	}
	if output != nil {
		raw, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("ledger: encode output: %w", err)
		}
		entry.Output = raw
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger: encode entry: %w", err)
	}
	if err := l.rdb.Set(ctx, operationID, raw, l.ttl).Err(); err != nil {
		return pkgerr.Transient("ledger", "set", err)
	}
	return nil
}

type memoryLedger struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryLedgerEntry
	now     func() time.Time
}

type memoryLedgerEntry struct {
	entry     LedgerEntry
	expiresAt time.Time
}

func NewMemoryLedger(ttl time.Duration) Ledger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &memoryLedger{
		ttl:     ttl,
		entries: map[string]memoryLedgerEntry{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewMemoryLedgerWithClock exists for tests that exercise TTL expiry.
func NewMemoryLedgerWithClock(ttl time.Duration, now func() time.Time) Ledger {
	l := NewMemoryLedger(ttl).(*memoryLedger)
	l.now = now
	return l
}

func (l *memoryLedger) Get(ctx context.Context, operationID string) (*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[operationID]
	if !ok {
		return nil, nil
	}
	if l.now().After(e.expiresAt) {
		delete(l.entries, operationID)
		return nil, nil
	}
	out := e.entry
	return &out, nil
}

func (l *memoryLedger) Record(ctx context.Context, operationID string, output any) error {
	entry := LedgerEntry{OperationID: operationID, CompletedAt: l.now()}
	if output != nil {
		raw, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("ledger: encode output: %w", err)
		}
		entry.Output = raw
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[operationID] = memoryLedgerEntry{
		entry:     entry,
		expiresAt: l.now().Add(l.ttl),
	}
	return nil
}
