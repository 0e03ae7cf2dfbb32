package cache

/*

benchmark on macOS 12.4(intel) with go 1.18

read speed
  sync.RWMutex : atomic.LoadPointer = 1 : 9

write speed
  sync.RWMutex : atomic.StorePointer = 6 : 1

readers load the current snapshot without locking, every change is applied by a
single writer goroutine that copies the snapshot and stores the new one.

*/

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/treemana/quickdot/log"
	"github.com/treemana/quickdot/model"
)

type table map[model.Key]*model.Entry

type opKind uint8

const (
	opUpdate opKind = iota
	opDelete
	opCapacity
	opClean
)

type op struct {
	kind     opKind
	key      model.Key
	entry    *model.Entry
	capacity int
	now      time.Time
}

// queueSize bounds the pending changes, Update blocks once it is full.
const queueSize = 1024

type Cache struct {
	snapshot atomic.Pointer[table]
	capacity atomic.Int64

	mu     sync.RWMutex // guards enable and the close of uc
	enable bool
	uc     chan op
	done   chan struct{}

	stop      chan struct{}
	cleanerWG sync.WaitGroup
}

func New(capacity int) *Cache {
	c := new(Cache)
	c.snapshot.Store(&table{})
	c.capacity.Store(int64(capacity))
	return c
}

// Start runs the writer and, when cleanInterval is positive, a sweeper that
// drops expired entries on every tick.
func (c *Cache) Start(cleanInterval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enable {
		return
	}

	c.uc = make(chan op, queueSize)
	c.done = make(chan struct{})
	c.stop = make(chan struct{})
	go c.update(c.uc, c.done)
	c.enable = true

	if cleanInterval > 0 {
		c.cleanerWG.Add(1)
		go c.cleaner(cleanInterval, c.stop)
	}
}

func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.enable {
		c.mu.Unlock()
		return
	}

	log.Sugar.Info("cache stopping")
	// senders hold the read lock, none is left once the write lock is held
	c.enable = false
	close(c.uc)
	close(c.stop)
	c.mu.Unlock()

	log.Sugar.Info("cache waiting")
	c.cleanerWG.Wait()
	<-c.done
	log.Sugar.Info("cache stopped")
}

// Get returns the entry stored for key, nil when absent or expired at now.
// The entry is shared, callers must not modify its Packet.
func (c *Cache) Get(key model.Key, now time.Time) *model.Entry {
	e := (*c.snapshot.Load())[key]
	if e == nil || e.Expired(now) {
		return nil
	}
	return e
}

// Update stores entry for key asynchronously, it is dropped when the cache is
// not running.
func (c *Cache) Update(key model.Key, entry *model.Entry) {
	if entry == nil {
		return
	}
	c.send(op{kind: opUpdate, key: key, entry: entry})
}

// Delete removes key asynchronously.
func (c *Cache) Delete(key model.Key) {
	c.send(op{kind: opDelete, key: key})
}

// SetCapacity changes the maximum number of entries, the soonest expiring
// entries are evicted until the cache fits.
func (c *Cache) SetCapacity(n int) {
	if n <= 0 {
		return
	}
	c.capacity.Store(int64(n))
	c.send(op{kind: opCapacity})
}

func (c *Cache) Capacity() int {
	return int(c.capacity.Load())
}

func (c *Cache) Len() int {
	return len(*c.snapshot.Load())
}

// Keys returns all stored keys, expired ones included until they are swept.
func (c *Cache) Keys() []model.Key {
	m := *c.snapshot.Load()
	keys := make([]model.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache) send(o op) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.enable {
		log.Sugar.Debugf("cache change after stopped, key=%s", o.key)
		return
	}
	c.uc <- o
}

func (c *Cache) cleaner(interval time.Duration, stop <-chan struct{}) {
	defer c.cleanerWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.send(op{kind: opClean, now: now})
		case <-stop:
			return
		}
	}
}

func (c *Cache) update(uc <-chan op, done chan<- struct{}) {
	defer close(done)

	for o := range uc {
		src := *c.snapshot.Load()
		var dst table

		switch o.kind {
		case opUpdate:
			dst = duplicate(src, 1)
			dst[o.key] = o.entry
			evict(dst, c.Capacity(), o.key)
		case opDelete:
			if _, ok := src[o.key]; !ok {
				continue
			}
			dst = duplicate(src, 0)
			delete(dst, o.key)
		case opCapacity:
			if len(src) <= c.Capacity() {
				continue
			}
			dst = duplicate(src, 0)
			evict(dst, c.Capacity(), model.Key{})
		case opClean:
			dst = make(table, len(src))
			for k, e := range src {
				if !e.Expired(o.now) {
					dst[k] = e
				}
			}
			if n := len(src) - len(dst); n > 0 {
				log.Sugar.Debugf("cache cleaned %d expired entries", n)
			} else {
				continue
			}
		}

		c.snapshot.Store(&dst)
	}
}

func duplicate(src table, extra int) table {
	dst := make(table, len(src)+extra)
	for k, e := range src {
		dst[k] = e
	}
	return dst
}

// evict drops the entries expiring soonest until m holds capacity entries,
// keep is never chosen.
func evict(m table, capacity int, keep model.Key) {
	for capacity > 0 && len(m) > capacity {
		var (
			victim model.Key
			found  bool
			expire int64
		)
		for k, e := range m {
			if k == keep {
				continue
			}
			if !found || e.Expire < expire {
				victim, expire, found = k, e.Expire, true
			}
		}
		if !found {
			return
		}
		delete(m, victim)
	}
}
