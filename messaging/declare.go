package messaging

import "sync"

// declaredSet tracks broker names that have already been declared so each
// queue or exchange is declared once per process.
type declaredSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func newDeclaredSet() *declaredSet {
	return &declaredSet{names: make(map[string]struct{})}
}

// add records name and reports whether it was seen for the first time.
func (s *declaredSet) add(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; ok {
		return false
	}
	s.names[name] = struct{}{}
	return true
}

func (s *declaredSet) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, name)
}

var (
	declaredQueues    = newDeclaredSet()
	declaredExchanges = newDeclaredSet()
)
