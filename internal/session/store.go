package session

import (
	"sync"
)

type Listener func(State)

// Store serializes dispatches for one session. States handed out by a Store are
// shared and must be treated as read-only.
type Store struct {
	ID string

	mu        sync.Mutex
	state     State
	seq       uint64
	listeners map[int]Listener
	nextSub   int

	// notifyMu orders listener calls by dispatch sequence.
	notifyMu sync.Mutex
	notified uint64
}

func NewStore(id string, initial State) *Store {
	return &Store{
		ID:        id,
		state:     initial,
		listeners: make(map[int]Listener),
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies actions in order as one step. Listeners see only the final state,
// one call at a time and never older than a state they were already handed. A
// notification overtaken by a later dispatch is dropped. Listeners must not dispatch
// on the same store.
func (s *Store) Dispatch(actions ...Action) State {
	s.mu.Lock()
	next := s.state
	for _, a := range actions {
		next = Reduce(next, a)
	}
	s.state = next
	s.seq++
	seq := s.seq
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq < s.notified {
		return next
	}
	s.notified = seq
	for _, l := range listeners {
		l(next)
	}
	return next
}

func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Registry owns the live sessions of a process.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

func (r *Registry) Create(initial State) *Store {
	store := NewStore(newID(), initial)
	r.mu.Lock()
	r.stores[store.ID] = store
	r.mu.Unlock()
	return store
}

func (r *Registry) Get(id string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[id]
	return store, ok
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.stores, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}
