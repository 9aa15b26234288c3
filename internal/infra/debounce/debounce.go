package debounce

import (
	"sync"
	"time"
)

type entry struct {
	timer *time.Timer
}

// Keyed откладывает вызов функции по ключу: новый Schedule заменяет ожидающий.
type Keyed struct {
	mu      sync.Mutex
	pending map[string]*entry
}

// New создаёт пустой debouncer.
func New() *Keyed {
	return &Keyed{pending: make(map[string]*entry)}
}

// Schedule запускает fn через delay, отменяя ранее запланированный вызов с тем же ключом.
func (k *Keyed) Schedule(key string, delay time.Duration, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if prev, ok := k.pending[key]; ok {
		prev.timer.Stop()
	}
	e := &entry{}
	e.timer = time.AfterFunc(delay, func() {
		k.mu.Lock()
		// таймер мог сработать уже после отмены или замены
		if k.pending[key] != e {
			k.mu.Unlock()
			return
		}
		delete(k.pending, key)
		k.mu.Unlock()
		fn()
	})
	k.pending[key] = e
}

// Cancel отменяет ожидающий вызов. Возвращает true, если он был.
func (k *Keyed) Cancel(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(k.pending, key)
	return true
}

// CancelAll отменяет все ожидающие вызовы.
func (k *Keyed) CancelAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.pending {
		e.timer.Stop()
		delete(k.pending, key)
	}
}

// Pending сообщает, ожидает ли ключ вызова.
func (k *Keyed) Pending(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.pending[key]
	return ok
}

// Len возвращает число ожидающих ключей.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}
