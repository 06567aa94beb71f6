package metrics

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/foxzi/walink/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"
)

// InventoryProvider provides entity counts for gauges
type InventoryProvider interface {
	Inventory(ctx context.Context) (*models.Inventory, error)
}

var bucketMetrics = []byte("metrics")

// CounterSnapshot stores counter values for persistence, keyed by metric name
// then by joined label values
type CounterSnapshot map[string]map[string]float64

// Collector handles metrics persistence and system gauge updates
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	inventory     InventoryProvider
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector and restores persisted counters
func NewCollector(db *bolt.DB, m *Metrics, inventory InventoryProvider, storagePath string, flushInterval time.Duration) (*Collector, error) {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	// Create bucket if not exists
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		inventory:     inventory,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		stopCh:        make(chan struct{}),
	}

	if err := c.loadCounters(); err != nil {
		return nil, err
	}

	return c, nil
}

// Start begins the collector background tasks
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.persistLoop(ctx)
	go c.updateSystemMetrics(ctx)
}

// Stop stops the collector and persists final values
func (c *Collector) Stop() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return c.persistCounters()
}

// Snapshot returns the current values of all persisted counters
func (c *Collector) Snapshot() (CounterSnapshot, error) {
	families, err := c.metrics.Registry().Gather()
	if err != nil {
		return nil, err
	}

	persisted := c.metrics.persistedCounters()
	snap := make(CounterSnapshot)
	for _, mf := range families {
		if _, ok := persisted[mf.GetName()]; !ok {
			continue
		}
		values := make(map[string]float64)
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			values[joinLabels(labels)] = metric.GetCounter().GetValue()
		}
		snap[mf.GetName()] = values
	}
	return snap, nil
}

// loadCounters adds persisted counter values to the fresh counters
func (c *Collector) loadCounters() error {
	return c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte("counters"))
		if data == nil {
			return nil
		}

		var snap CounterSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil // Skip invalid data
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		for name, vec := range c.metrics.persistedCounters() {
			for key, v := range snap[name] {
				labels := prometheus.Labels{}
				for _, pair := range splitLabels(key) {
					k, val := splitPair(pair)
					labels[k] = val
				}
				counter, err := vec.GetMetricWith(labels)
				if err != nil {
					continue // Label set no longer matches
				}
				counter.Add(v)
			}
		}
		return nil
	})
}

// persistCounters saves counter values to BoltDB
func (c *Collector) persistCounters() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.Snapshot()
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}

		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}

		return bucket.Put([]byte("counters"), data)
	})
}

// persistLoop periodically persists counter values
func (c *Collector) persistLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.persistCounters()
		}
	}
}

// updateSystemMetrics periodically updates system gauges
func (c *Collector) updateSystemMetrics(ctx context.Context) {
	defer c.wg.Done()

	c.collectSystemMetrics(ctx)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collectSystemMetrics(ctx)
		}
	}
}

// collectSystemMetrics collects current system state
func (c *Collector) collectSystemMetrics(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.inventory != nil {
		inv, err := c.inventory.Inventory(ctx)
		if err == nil {
			c.metrics.Groups.WithLabelValues("active").Set(float64(inv.ActiveGroups))
			c.metrics.Groups.WithLabelValues("inactive").Set(float64(inv.Groups - inv.ActiveGroups))
			c.metrics.Agents.WithLabelValues("active").Set(float64(inv.ActiveAgents))
			c.metrics.Agents.WithLabelValues("inactive").Set(float64(inv.Agents - inv.ActiveAgents))
			c.metrics.ClickEvents.Set(float64(inv.ClickEvents))
		}
	}
}

// Helper functions for label key serialization
func joinLabels(pairs []string) string {
	return strings.Join(pairs, "|")
}

func splitLabels(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, "|")
}

func splitPair(pair string) (string, string) {
	k, v, _ := strings.Cut(pair, "=")
	return k, v
}
