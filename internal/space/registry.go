package space

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

const defaultFanOutWorkers = 256

// Registry owns every live space of the process. Spaces are created on the
// first join and dropped on the last leave; a name slot left empty can be
// recreated later with fresh state.
type Registry struct {
	mu     sync.RWMutex
	spaces map[string]*Space

	pool *ants.Pool
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	fanOutWorkers int
}

// WithFanOutWorkers sets the size of the broadcast worker pool.
func WithFanOutWorkers(n int) RegistryOption {
	return func(c *registryConfig) {
		c.fanOutWorkers = n
	}
}

// NewRegistry creates an empty Registry backed by a shared fan-out pool.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg := &registryConfig{fanOutWorkers: defaultFanOutWorkers}
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := ants.NewPool(cfg.fanOutWorkers, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Registry{
		spaces: make(map[string]*Space),
		pool:   pool,
	}, nil
}

// Close releases the fan-out pool. Live spaces are abandoned; callers must
// have detached every session first.
func (r *Registry) Close() {
	r.pool.Release()
}

// Join subscribes the watcher to the named space, creating it on demand.
// Joining a space twice is a no-op.
func (r *Registry) Join(name Name, w Watcher, user wire.SpaceUser) {
	sp := r.getOrCreate(name)
	sp.join(w, user)
}

// Leave unsubscribes the watcher and garbage-collects the space when the
// last subscriber is gone. Leaving an unknown space is a no-op.
func (r *Registry) Leave(name Name, watcherID uint64) {
	r.mu.RLock()
	sp, ok := r.spaces[name.String()]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if !sp.leave(watcherID) {
		return
	}

	// Re-check emptiness under the write lock: a join may have raced in.
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.spaces[name.String()]; ok && cur == sp && sp.Len() == 0 {
		delete(r.spaces, name.String())
		metrics.ActiveSpaces.WithLabelValues(name.World()).Dec()
		log.Debug("space garbage collected", zap.String("space", name.String()))
	}
}

// AddFilter registers a watch filter on a joined space.
func (r *Registry) AddFilter(name Name, watcherID uint64, filter wire.SpaceFilter) error {
	sp, err := r.get(name)
	if err != nil {
		return err
	}
	return sp.addFilter(watcherID, filter)
}

// UpdateFilter replaces a previously added filter.
func (r *Registry) UpdateFilter(name Name, watcherID uint64, filter wire.SpaceFilter) error {
	sp, err := r.get(name)
	if err != nil {
		return err
	}
	return sp.updateFilter(watcherID, filter)
}

// RemoveFilter drops a previously added filter.
func (r *Registry) RemoveFilter(name Name, watcherID uint64, filterID string) error {
	sp, err := r.get(name)
	if err != nil {
		return err
	}
	return sp.removeFilter(watcherID, filterID)
}

// UpdateUser publishes new presence details of the watcher's user.
func (r *Registry) UpdateUser(name Name, watcherID uint64, user wire.SpaceUser, updateMask []string) error {
	sp, err := r.get(name)
	if err != nil {
		return err
	}
	return sp.updateUser(watcherID, user, updateMask)
}

// UpdateMetadata merges metadata into the space and broadcasts the result.
func (r *Registry) UpdateMetadata(name Name, raw string) error {
	sp, err := r.get(name)
	if err != nil {
		return err
	}
	return sp.updateMetadata(raw)
}

// PublicEvent relays an opaque event to every other subscriber.
func (r *Registry) PublicEvent(name Name, senderID uint64, event string) error {
	sp, err := r.get(name)
	if err != nil {
		return err
	}
	return sp.publicEvent(senderID, event)
}

// PrivateEvent relays an opaque event to one subscriber.
func (r *Registry) PrivateEvent(name Name, senderID, receiverUserID uint64, event string) error {
	sp, err := r.get(name)
	if err != nil {
		return err
	}
	return sp.privateEvent(senderID, receiverUserID, event)
}

// Len returns the number of live spaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spaces)
}

func (r *Registry) get(name Name) (*Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.spaces[name.String()]
	if !ok {
		return nil, merr.WrapErrSpaceNotFound(name.String())
	}
	return sp, nil
}

func (r *Registry) getOrCreate(name Name) *Space {
	r.mu.RLock()
	sp, ok := r.spaces[name.String()]
	r.mu.RUnlock()
	if ok {
		return sp
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sp, ok := r.spaces[name.String()]; ok {
		return sp
	}
	sp = newSpace(name, r.fanOut)
	r.spaces[name.String()] = sp
	metrics.ActiveSpaces.WithLabelValues(name.World()).Inc()
	log.Debug("space created", zap.String("space", name.String()))
	return sp
}

// fanOut runs delivery closures on the worker pool and waits for the batch.
// Each closure targets a distinct watcher, so running them in parallel never
// reorders events for a single watcher; waiting preserves the order between
// consecutive broadcasts.
func (r *Registry) fanOut(fns []func()) {
	if len(fns) == 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		fn := fn
		if err := r.pool.Submit(func() {
			defer wg.Done()
			fn()
		}); err != nil {
			// Pool released or saturated beyond its queue; deliver inline.
			fn()
			wg.Done()
		}
	}
	wg.Wait()
}
