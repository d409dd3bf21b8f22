package logsink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Blob kinds written by the dispatcher.
const (
	KindRequest  = "request"
	KindResponse = "response"
)

// DefaultBlobMaxSize caps a single stored body.
const DefaultBlobMaxSize = 10 << 20

// BlobStore keeps raw request and response bodies. Put must not block.
type BlobStore interface {
	Put(requestID, kind string, data []byte)
}

// NopBlobStore discards bodies.
type NopBlobStore struct{}

// Put implements BlobStore.
func (NopBlobStore) Put(string, string, []byte) {}

type blob struct {
	requestID string
	kind      string
	data      []byte
	at        time.Time
}

// FilesystemBlobStore writes each body to <dir>/<yyyy-mm-dd>/<requestID>.<kind>
// from a background writer.
type FilesystemBlobStore struct {
	dir     string
	maxSize int
	logger  *slog.Logger
	now     func() time.Time
	queue   chan blob
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewFilesystemBlobStore creates the store and starts its writer. A
// non-positive maxSize selects DefaultBlobMaxSize.
func NewFilesystemBlobStore(dir string, maxSize int64) (*FilesystemBlobStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	if maxSize <= 0 {
		maxSize = DefaultBlobMaxSize
	}

	b := &FilesystemBlobStore{
		dir:     dir,
		maxSize: int(maxSize),
		logger:  slog.Default().With("component", "logsink.blobs"),
		now:     time.Now,
		queue:   make(chan blob, 256),
	}
	b.wg.Add(1)
	go b.worker()
	return b, nil
}

// Put copies data and queues it for writing. Bodies over the size limit are
// truncated; a full queue drops the body.
func (b *FilesystemBlobStore) Put(requestID, kind string, data []byte) {
	if requestID == "" || len(data) == 0 {
		return
	}
	if len(data) > b.maxSize {
		b.logger.Warn("truncating blob",
			"request_id", requestID,
			"kind", kind,
			"size", len(data),
			"max_size", b.maxSize,
		)
		data = data[:b.maxSize]
	}
	item := blob{
		requestID: requestID,
		kind:      kind,
		data:      append([]byte(nil), data...),
		at:        b.now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- item:
	default:
		b.logger.Warn("blob queue full, dropping body", "request_id", requestID, "kind", kind)
	}
}

// Path returns where a body for requestID and kind written at t is stored.
func (b *FilesystemBlobStore) Path(requestID, kind string, t time.Time) string {
	return filepath.Join(b.dir, t.Format("2006-01-02"), safeName(requestID)+"."+safeName(kind))
}

// Close writes everything queued and stops the writer.
func (b *FilesystemBlobStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *FilesystemBlobStore) worker() {
	defer b.wg.Done()
	for item := range b.queue {
		path := b.Path(item.requestID, item.kind, item.at)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.logger.Error("failed to create blob directory", "path", path, "error", err)
			continue
		}
		if err := os.WriteFile(path, item.data, 0o600); err != nil {
			b.logger.Error("failed to write blob", "path", path, "error", err)
		}
	}
}

// safeName keeps request IDs from escaping the day directory.
func safeName(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}
