package domain

import (
	"cmp"
	"slices"
	"sync"
)

// keyed is a child collection owned by a single composite node. It carries its
// own lock so that unrelated subtrees can be read and written concurrently.
// The zero value is ready to use.
type keyed[K cmp.Ordered, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func (k *keyed[K, V]) get(key K) (V, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.m[key]
	return v, ok
}

func (k *keyed[K, V]) has(key K) bool {
	_, ok := k.get(key)
	return ok
}

// add inserts v under key and reports false, leaving the collection untouched,
// when the key is already present.
func (k *keyed[K, V]) add(key K, v V) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.m[key]; exists {
		return false
	}
	if k.m == nil {
		k.m = make(map[K]V)
	}
	k.m[key] = v
	return true
}

// put inserts or replaces the value under key.
func (k *keyed[K, V]) put(key K, v V) (V, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.m == nil {
		k.m = make(map[K]V)
	}
	old, had := k.m[key]
	k.m[key] = v
	return old, had
}

// replace swaps the value under an existing key. It reports false when the key is absent.
func (k *keyed[K, V]) replace(key K, v V) (V, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	old, had := k.m[key]
	if !had {
		return old, false
	}
	k.m[key] = v
	return old, true
}

func (k *keyed[K, V]) remove(key K) (V, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	old, had := k.m[key]
	if had {
		delete(k.m, key)
	}
	return old, had
}

func (k *keyed[K, V]) len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.m)
}

// keys returns the keys in their natural sorted order.
func (k *keyed[K, V]) keys() []K {
	k.mu.RLock()
	out := make([]K, 0, len(k.m))
	for key := range k.m {
		out = append(out, key)
	}
	k.mu.RUnlock()
	slices.Sort(out)
	return out
}

// values returns the values ordered by key.
func (k *keyed[K, V]) values() []V {
	snap := k.snapshot()
	keys := make([]K, 0, len(snap))
	for key := range snap {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	out := make([]V, 0, len(keys))
	for _, key := range keys {
		out = append(out, snap[key])
	}
	return out
}

// snapshot copies the underlying map.
func (k *keyed[K, V]) snapshot() map[K]V {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[K]V, len(k.m))
	for key, v := range k.m {
		out[key] = v
	}
	return out
}
