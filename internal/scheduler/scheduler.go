// Package scheduler реализует отложенный запуск обработчиков истечения срока оплаты заявок.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handle идентифицирует один взведённый таймер.
type Handle struct {
	OrderNumber int64
	seq         uint64
}

type entry struct {
	handle   Handle
	deadline time.Time
	onExpire func(orderNumber int64)
	index    int
}

// entryHeap упорядочивает таймеры по сроку срабатывания.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].handle.seq < h[j].handle.seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler хранит таймеры в куче и обслуживает их одной горутиной Run.
// Таймер снимается ровно один раз: либо Disarm, либо срабатыванием.
type Scheduler struct {
	mu      sync.Mutex
	queue   entryHeap
	entries map[uint64]*entry
	seq     uint64

	wake     chan struct{}
	inFlight sync.WaitGroup
	logger   *zap.Logger
}

// New создаёт планировщик. Таймеры срабатывают только пока запущен Run.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		entries: make(map[uint64]*entry),
		wake:    make(chan struct{}, 1),
		logger:  logger,
	}
}

// Arm взводит таймер: onExpire будет вызван через d.
func (s *Scheduler) Arm(orderNumber int64, d time.Duration, onExpire func(orderNumber int64)) Handle {
	return s.ArmAt(orderNumber, time.Now().Add(d), onExpire)
}

// ArmAt взводит таймер на момент deadline. Прошедший срок срабатывает на ближайшей итерации.
func (s *Scheduler) ArmAt(orderNumber int64, deadline time.Time, onExpire func(orderNumber int64)) Handle {
	s.mu.Lock()
	s.seq++
	e := &entry{
		handle:   Handle{OrderNumber: orderNumber, seq: s.seq},
		deadline: deadline,
		onExpire: onExpire,
	}
	heap.Push(&s.queue, e)
	s.entries[e.handle.seq] = e
	earliest := s.queue[0] == e
	s.mu.Unlock()

	if earliest {
		s.notify()
	}
	return e.handle
}

// Disarm снимает таймер. Возвращает false, если таймер уже сработал или снят.
func (s *Scheduler) Disarm(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[h.seq]
	if !ok {
		return false
	}
	delete(s.entries, h.seq)
	heap.Remove(&s.queue, e.index)
	return true
}

// Len возвращает число взведённых таймеров.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run обслуживает таймеры до отмены ctx и дожидается запущенных обработчиков.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	defer s.inFlight.Wait()

	for {
		due, next, ok := s.takeDue(time.Now())
		for _, e := range due {
			s.fire(e)
		}

		if ok {
			timer.Reset(time.Until(next))
		} else {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// takeDue забирает из кучи таймеры со сроком не позже now и возвращает ближайший оставшийся срок.
func (s *Scheduler) takeDue(now time.Time) ([]*entry, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for len(s.queue) > 0 && !s.queue[0].deadline.After(now) {
		e := heap.Pop(&s.queue).(*entry)
		delete(s.entries, e.handle.seq)
		due = append(due, e)
	}

	if len(s.queue) == 0 {
		return due, time.Time{}, false
	}
	return due, s.queue[0].deadline, true
}

func (s *Scheduler) fire(e *entry) {
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("expiry handler panicked",
					zap.Int64("order_number", e.handle.OrderNumber),
					zap.Any("panic", r),
				)
			}
		}()

		e.onExpire(e.handle.OrderNumber)
	}()
}
