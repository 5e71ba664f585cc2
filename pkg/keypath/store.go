// Package keypath provides an observable in-memory state tree addressed by
// dot-separated paths such as "gantt.navigation.level".
//
// Objects in the tree are map[string]any. Subscriptions are keyed by the exact
// path string: a write to "a.b" notifies listeners of "a.b" only, never those
// of "a" or "a.b.c".
package keypath

import (
	"sort"
	"strings"
	"sync"

	"github.com/grovetools/livesync/logging"
	"github.com/sirupsen/logrus"
)

// Listener receives the post-write value of the path it subscribed to.
type Listener func(value any)

type subscription struct {
	id uint64
	fn Listener
}

// Store is a thread-safe key-path state tree with exact-path pub/sub.
type Store struct {
	mu        sync.RWMutex
	root      map[string]any
	defaults  func() map[string]any
	listeners map[string][]subscription
	nextID    uint64
	logger    *logrus.Entry
}

// Option configures a Store.
type Option func(*Store)

// WithDefaults sets the factory used for the initial tree and by Reset.
func WithDefaults(fn func() map[string]any) Option {
	return func(s *Store) {
		s.defaults = fn
	}
}

// WithLogger overrides the store's logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Store instance.
func New(opts ...Option) *Store {
	s := &Store{
		defaults:  func() map[string]any { return map[string]any{} },
		listeners: make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger("keypath")
	}
	s.root = s.fresh()
	return s
}

func (s *Store) fresh() map[string]any {
	tree := s.defaults()
	if tree == nil {
		return map[string]any{}
	}
	return deepCopyMap(tree)
}

// Get returns a deep copy of the value at path. Missing or malformed paths
// return (nil, false).
func (s *Store) Get(path string) (any, bool) {
	segments, ok := split(path)
	if !ok {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cur any = s.root
	for _, seg := range segments {
		obj, isObj := cur.(map[string]any)
		if !isObj {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return DeepCopy(cur), true
}

// GetString returns the string at path, or "" when absent or not a string.
func (s *Store) GetString(path string) string {
	v, _ := s.Get(path)
	str, _ := v.(string)
	return str
}

// GetMap returns the object at path, or nil when absent or not an object.
func (s *Store) GetMap(path string) map[string]any {
	v, _ := s.Get(path)
	m, _ := v.(map[string]any)
	return m
}

// Set writes value at path, creating missing intermediate objects. If an
// intermediate segment exists but is not an object the write is dropped.
func (s *Store) Set(path string, value any) {
	segments, ok := split(path)
	if !ok {
		s.logger.WithField("path", path).Debug("Ignoring set on malformed path")
		return
	}

	stored := DeepCopy(value)

	s.mu.Lock()
	parent := s.root
	for _, seg := range segments[:len(segments)-1] {
		next, exists := parent[seg]
		if !exists {
			child := map[string]any{}
			parent[seg] = child
			parent = child
			continue
		}
		child, isObj := next.(map[string]any)
		if !isObj {
			s.mu.Unlock()
			s.logger.WithFields(logrus.Fields{
				"path":    path,
				"segment": seg,
			}).Debug("Ignoring set through non-object segment")
			return
		}
		parent = child
	}
	parent[segments[len(segments)-1]] = stored
	subs, snapshot := s.subscribersLocked(path, stored)
	s.mu.Unlock()

	notify(subs, snapshot)
}

// Update shallow-merges patch into the object at path. It is a no-op when the
// leaf is absent or is not an object.
func (s *Store) Update(path string, patch map[string]any) {
	segments, ok := split(path)
	if !ok {
		return
	}

	s.mu.Lock()
	var cur any = s.root
	for _, seg := range segments {
		obj, isObj := cur.(map[string]any)
		if !isObj {
			s.mu.Unlock()
			return
		}
		if cur, ok = obj[seg]; !ok {
			s.mu.Unlock()
			s.logger.WithField("path", path).Debug("Ignoring update of absent path")
			return
		}
	}
	leaf, isObj := cur.(map[string]any)
	if !isObj {
		s.mu.Unlock()
		s.logger.WithField("path", path).Debug("Ignoring update of non-object leaf")
		return
	}
	for k, v := range patch {
		leaf[k] = DeepCopy(v)
	}
	subs, snapshot := s.subscribersLocked(path, leaf)
	s.mu.Unlock()

	notify(subs, snapshot)
}

// Subscribe registers fn for writes to exactly path. The returned function
// removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(path string, fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[path] = append(s.listeners[path], subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.listeners[path]
			for i, sub := range subs {
				if sub.id == id {
					s.listeners[path] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(s.listeners[path]) == 0 {
				delete(s.listeners, path)
			}
		})
	}
}

// Reset replaces the tree with a fresh default and drops every subscription.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = s.fresh()
	s.listeners = make(map[string][]subscription)
}

// Keys returns the sorted top-level keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.root))
	for k := range s.root {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the whole tree.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopyMap(s.root)
}

// ListenerCount returns the number of subscriptions on path.
func (s *Store) ListenerCount(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners[path])
}

// subscribersLocked copies the listener list and the post-write value while
// the write lock is still held.
func (s *Store) subscribersLocked(path string, value any) ([]subscription, any) {
	subs := s.listeners[path]
	if len(subs) == 0 {
		return nil, nil
	}
	out := make([]subscription, len(subs))
	copy(out, subs)
	return out, DeepCopy(value)
}

// notify runs outside the lock so listeners may call back into the store.
func notify(subs []subscription, value any) {
	for _, sub := range subs {
		sub.fn(value)
	}
}

func split(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, false
		}
	}
	return segments, true
}
