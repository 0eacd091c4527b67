package hook

import "sync"

// Listener receives one event on the consumer goroutine
type Listener func(Event)

// Listeners maps event names to at most one listener each
type Listeners struct {
	mu sync.RWMutex
	m  map[string]Listener
}

// NewListeners creates an empty table
func NewListeners() *Listeners {
	return &Listeners{m: make(map[string]Listener)}
}

// Register sets the listener for name, replacing any previous one
func (l *Listeners) Register(name string, listener Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[name] = listener
}

// Unregister clears the listener for name
func (l *Listeners) Unregister(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, name)
}

// Lookup returns the listener for name
func (l *Listeners) Lookup(name string) (Listener, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	listener, ok := l.m[name]
	return listener, ok
}
