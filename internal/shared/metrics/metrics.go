package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	documentsGeneratedTotal atomic.Uint64
	documentsPersistedTotal atomic.Uint64
	persistFailedTotal      atomic.Uint64
	updateConflictTotal     atomic.Uint64
	blobDeleteFailedTotal   atomic.Uint64
	cacheHitTotal           atomic.Uint64
	cacheMissTotal          atomic.Uint64

	renderDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncGenerated counts rendered documents, persisted or not.
func IncGenerated() { documentsGeneratedTotal.Add(1) }

// IncPersisted counts documents whose blob and metadata row were both written.
func IncPersisted() { documentsPersistedTotal.Add(1) }

// IncPersistFailed counts generate calls whose persistence step failed after rendering.
func IncPersistFailed() { persistFailedTotal.Add(1) }

// IncUpdateConflict counts updates rejected by the optimistic concurrency check.
func IncUpdateConflict() { updateConflictTotal.Add(1) }

// IncBlobDeleteFailed counts blob deletions that failed with a genuine error.
func IncBlobDeleteFailed() { blobDeleteFailedTotal.Add(1) }

// IncCacheHit counts access cache hits.
func IncCacheHit() { cacheHitTotal.Add(1) }

// IncCacheMiss counts access cache misses (loader invocations).
func IncCacheMiss() { cacheMissTotal.Add(1) }

// ObserveRenderDurationMs records a template+PDF render duration in milliseconds.
func ObserveRenderDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	renderDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "documents_generated_total", "Total documents rendered", documentsGeneratedTotal.Load())
	writeCounter(&buf, "documents_persisted_total", "Total documents persisted for an owner", documentsPersistedTotal.Load())
	writeCounter(&buf, "documents_persist_failed_total", "Total generate calls whose persistence failed", persistFailedTotal.Load())
	writeCounter(&buf, "documents_update_conflict_total", "Total updates rejected by a concurrent write", updateConflictTotal.Load())
	writeCounter(&buf, "blob_delete_failed_total", "Total blob deletions that failed", blobDeleteFailedTotal.Load())
	writeCounter(&buf, "access_cache_hit_total", "Total access cache hits", cacheHitTotal.Load())
	writeCounter(&buf, "access_cache_miss_total", "Total access cache misses", cacheMissTotal.Load())
	writeHistogram(&buf, "render_duration_ms", "Render duration in milliseconds", renderDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records value in the first bucket whose bound covers it; cumulation happens on render.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
