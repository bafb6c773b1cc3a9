package broker

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memValue struct {
	value     string
	expiresAt time.Time // zero => без срока
}

// Memory: брокер в памяти процесса, с той же семантикой, что и Redis-версия.
// Используется в тестах и для локального запуска (broker.backend: memory).
type Memory struct {
	mu     sync.Mutex
	lists  map[string][]string // [0] — голова
	kv     map[string]memValue
	wake   chan struct{}
	closed bool

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		lists: make(map[string][]string),
		kv:    make(map[string]memValue),
		wake:  make(chan struct{}),
		now:   time.Now,
	}
}

// SetClock подменяет часы (для тестов TTL).
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// broadcast будит всех, кто ждёт в BPop. Вызывать под m.mu.
func (m *Memory) broadcast() {
	close(m.wake)
	m.wake = make(chan struct{})
}

func (m *Memory) BPop(ctx context.Context, timeout time.Duration, keys ...string) (Item, bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Item{}, false, ErrClosed
		}
		for _, k := range keys {
			l := m.lists[k]
			if len(l) == 0 {
				continue
			}
			v := l[len(l)-1]
			l = l[:len(l)-1]
			if len(l) == 0 {
				delete(m.lists, k)
			} else {
				m.lists[k] = l
			}
			m.mu.Unlock()
			return Item{Key: k, Value: v}, true, nil
		}
		wake := m.wake
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, false, ctx.Err()
		case <-deadline:
			return Item{}, false, nil
		case <-wake:
		}
	}
}

func (m *Memory) Push(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	l := m.lists[key]
	head := make([]string, 0, len(l)+len(values))
	// LPUSH a b c => [c b a ...]
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	m.lists[key] = append(head, l...)
	m.broadcast()
	return nil
}

// normRange переводит индексы в стиле LRANGE/LTRIM (отрицательные — с конца).
func normRange(n int, start, stop int64) (int, int, bool) {
	s, e := int(start), int(stop)
	if s < 0 {
		s += n
	}
	if e < 0 {
		e += n
	}
	if s < 0 {
		s = 0
	}
	if e >= n {
		e = n - 1
	}
	if s > e || s >= n {
		return 0, 0, false
	}
	return s, e, true
}

func (m *Memory) Trim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	l := m.lists[key]
	s, e, ok := normRange(len(l), start, stop)
	if !ok {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = append([]string(nil), l[s:e+1]...)
	return nil
}

func (m *Memory) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	l := m.lists[key]
	s, e, ok := normRange(len(l), start, stop)
	if !ok {
		return []string{}, nil
	}
	return append([]string(nil), l[s:e+1]...), nil
}

// lookup возвращает живое значение, попутно выкидывая протухшее. Под m.mu.
func (m *Memory) lookup(key string) (memValue, bool) {
	v, ok := m.kv[key]
	if !ok {
		return memValue{}, false
	}
	if !v.expiresAt.IsZero() && !m.now().Before(v.expiresAt) {
		delete(m.kv, key)
		return memValue{}, false
	}
	return v, true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.lookup(key)
	return v.value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	v := memValue{value: value}
	if ttl > 0 {
		v.expiresAt = m.now().Add(ttl)
	}
	m.kv[key] = v
	return nil
}

// TTL: -1 — ключ без срока, -2 — ключа нет (как в Redis).
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	v, ok := m.lookup(key)
	if !ok {
		return -2, nil
	}
	if v.expiresAt.IsZero() {
		return -1, nil
	}
	return v.expiresAt.Sub(m.now()), nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(m.kv, k)
		delete(m.lists, k)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.lookup(key); ok {
		return true, nil
	}
	_, ok := m.lists[key]
	return ok, nil
}

func (m *Memory) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0)
	for k := range m.kv {
		if _, ok := m.lookup(k); ok && strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range m.lists {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.broadcast()
	}
	return nil
}
