// Package assembler reassembles QBT segments into completed files and
// fans the results out to subscribers.
package assembler

import (
	"container/list"
	"log/slog"
	"sort"
	"sync"

	"github.com/wxmesh/byteblaster/pkg/metrics"
	"github.com/wxmesh/byteblaster/pkg/protocol"
)

const fillFilename = "FILLFILE.TXT"

// DefaultDuplicateCacheSize bounds the FIFO of recently completed keys used
// to suppress retransmitted segments.
const DefaultDuplicateCacheSize = 100

// CompletedFile is a fully reassembled file, in block-number order.
type CompletedFile struct {
	Filename string
	Data     []byte
}

// Assembler groups segments by completion key, detects completion, and
// suppresses duplicate retransmissions. It does not time out incomplete
// buckets; stale buckets persist for the process lifetime.
type Assembler struct {
	log        *slog.Logger
	dispatcher *Dispatcher
	cacheSize  int
	metrics    *metrics.Registry

	mu          sync.Mutex
	buckets     map[string][]protocol.Segment
	recent      *list.List
	recentIndex map[string]*list.Element
}

// New constructs an Assembler that dispatches completed files to d. A
// cacheSize of 0 uses DefaultDuplicateCacheSize.
func New(d *Dispatcher, cacheSize int) *Assembler {
	if cacheSize <= 0 {
		cacheSize = DefaultDuplicateCacheSize
	}
	return &Assembler{
		log:         slog.Default().With("service", "[ASM]"),
		dispatcher:  d,
		cacheSize:   cacheSize,
		buckets:     make(map[string][]protocol.Segment),
		recent:      list.New(),
		recentIndex: make(map[string]*list.Element),
	}
}

// SetMetrics attaches a metrics registry that completed-file counts are
// reported against. Optional; nil (the default) disables instrumentation.
func (a *Assembler) SetMetrics(reg *metrics.Registry) {
	a.metrics = reg
}

// HandleSegment ingests one decoded segment. Completion, once detected,
// dispatches synchronously (the dispatcher controls its own concurrency;
// this call returns once every subscriber has settled, providing the
// backpressure spec requires between successive completions).
func (a *Assembler) HandleSegment(seg protocol.Segment) {
	if seg.Filename == fillFilename {
		return
	}

	key := seg.Key()

	a.mu.Lock()
	if _, dup := a.recentIndex[key]; dup {
		a.mu.Unlock()
		a.log.Debug("ignoring duplicate segment", "key", key)
		return
	}

	bucket := append(a.buckets[key], seg)
	a.buckets[key] = bucket

	if len(bucket) != seg.TotalBlocks {
		a.mu.Unlock()
		return
	}

	delete(a.buckets, key)
	a.markRecentLocked(key)
	a.mu.Unlock()

	file := reassemble(bucket)
	a.log.Info("file reassembled", "filename", file.Filename, "bytes", len(file.Data))
	if a.metrics != nil {
		a.metrics.CompletedFiles.Inc()
	}
	if a.dispatcher != nil {
		a.dispatcher.Dispatch(file)
	}
}

func (a *Assembler) markRecentLocked(key string) {
	elem := a.recent.PushBack(key)
	a.recentIndex[key] = elem
	for a.recent.Len() > a.cacheSize {
		oldest := a.recent.Front()
		a.recent.Remove(oldest)
		delete(a.recentIndex, oldest.Value.(string))
	}
}

func reassemble(bucket []protocol.Segment) CompletedFile {
	sorted := append([]protocol.Segment{}, bucket...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BlockNumber < sorted[j].BlockNumber })

	var size int
	for _, s := range sorted {
		size += len(s.Content)
	}
	data := make([]byte, 0, size)
	for _, s := range sorted {
		data = append(data, s.Content...)
	}
	return CompletedFile{Filename: sorted[0].Filename, Data: data}
}
