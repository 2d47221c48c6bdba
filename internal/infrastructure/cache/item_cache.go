// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pestctl/internal/core/id"
	"pestctl/internal/domain/catalog"
	"pestctl/pkg/logger"
)

// CatalogChannel is the NOTIFY channel fired by the items and
// item_conversions triggers. The payload is the item id.
const CatalogChannel = "catalog_changed"

// ItemCache keeps items with their conversions in memory and drops an entry
// when Postgres reports a change to it. It implements catalog.Reader.
type ItemCache struct {
	source catalog.Reader
	pool   *pgxpool.Pool

	mu    sync.RWMutex
	items map[id.ID]*catalog.Item

	hits   uint64
	misses uint64

	// Listeners for cache invalidation
	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

var _ catalog.Reader = (*ItemCache)(nil)

// InvalidationListener is called after an entry was dropped. itemID is nil
// when the whole cache was flushed.
type InvalidationListener func(itemID *id.ID)

// NewItemCache creates a cache over source. pool is used only for LISTEN and
// may be nil, in which case entries live until Invalidate is called.
func NewItemCache(source catalog.Reader, pool *pgxpool.Pool) *ItemCache {
	return &ItemCache{
		source: source,
		pool:   pool,
		items:  make(map[id.ID]*catalog.Item),
	}
}

// GetByID implements catalog.Reader. Callers get a copy they may modify.
func (c *ItemCache) GetByID(ctx context.Context, companyID, itemID id.ID) (*catalog.Item, error) {
	c.mu.RLock()
	item, ok := c.items[itemID]
	c.mu.RUnlock()
	if ok && item.CompanyID == companyID {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return item.Clone(), nil
	}

	loaded, err := c.source.GetByID(ctx, companyID, itemID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.misses++
	c.items[itemID] = loaded.Clone()
	c.mu.Unlock()
	return loaded, nil
}

// Invalidate drops one item.
func (c *ItemCache) Invalidate(itemID id.ID) {
	c.mu.Lock()
	delete(c.items, itemID)
	c.mu.Unlock()
	c.notify(&itemID)
}

// Flush drops every item.
func (c *ItemCache) Flush() {
	c.mu.Lock()
	c.items = make(map[id.ID]*catalog.Item)
	c.mu.Unlock()
	c.notify(nil)
}

// Start begins listening for NOTIFY events.
func (c *ItemCache) Start(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "item cache started")
	return nil
}

// Stop gracefully stops the cache listener.
func (c *ItemCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "item cache stopped")
}

// listenLoop holds a dedicated connection subscribed to CatalogChannel and
// reconnects when it breaks.
func (c *ItemCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			c.sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(c.ctx, "LISTEN "+CatalogChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			c.sleep(time.Second)
			continue
		}

		// Changes may have been missed while no connection was listening.
		c.Flush()
		logger.Info(c.ctx, "listening for catalog notifications", "channel", CatalogChannel)

		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *ItemCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		// Wait with a timeout so shutdown is noticed.
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if ctx.Err() == context.DeadlineExceeded {
				continue
			}
			logger.Warn(c.ctx, "catalog listener connection lost", "error", err)
			return
		}

		logger.Debug(c.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)
		c.handleNotification(notification.Channel, notification.Payload)
	}
}

// handleNotification processes a NOTIFY event. An unparsable payload flushes everything.
func (c *ItemCache) handleNotification(channel, payload string) {
	if channel != CatalogChannel {
		return
	}
	itemID, err := id.Parse(strings.TrimSpace(payload))
	if err != nil {
		c.Flush()
		return
	}
	c.Invalidate(itemID)
}

// OnInvalidation registers a callback for cache invalidation events.
func (c *ItemCache) OnInvalidation(listener InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, listener)
	c.listenersMu.Unlock()
}

func (c *ItemCache) notify(itemID *id.ID) {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, listener := range c.listeners {
		func(l InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(context.Background(), "listener panic recovered", "panic", r)
				}
			}()
			l(itemID)
		}(listener)
	}
}

func (c *ItemCache) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Items  int    `json:"items"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// GetStats returns current cache statistics.
func (c *ItemCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Items: len(c.items), Hits: c.hits, Misses: c.misses}
}
