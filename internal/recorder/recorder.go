// Package recorder записывает успешные оплаты в хранилище заказов.
// Ошибки хранилища только логируются: ответ платёжному шлюзу от них не зависит.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/photostore/internal/model"
)

// DateLayout задаёт формат даты заказа: локальное время сервера с точностью до секунды.
const DateLayout = "2006-01-02 15:04:05"

const writeTimeout = 5 * time.Second

// Storage описывает хранилище, в которое добавляются заказы.
type Storage interface {
	AppendOrder(ctx context.Context, order model.Order) error
}

// Clock возвращает текущее время. Подменяется в тестах.
type Clock interface {
	Now() time.Time
}

// RealClock возвращает локальное время сервера.
type RealClock struct{}

// Now возвращает текущее время.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sync записывает заказ сразу, в горутине запроса.
type Sync struct {
	storage Storage
	clock   Clock
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *zap.Logger
}

// NewSync создаёт синхронный регистратор заказов.
func NewSync(storage Storage, clock Clock, logger *zap.Logger) *Sync {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "orders-storage",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Sync{
		storage: storage,
		clock:   clock,
		breaker: cb,
		logger:  logger,
	}
}

// Record проставляет дату и записывает заказ. Ошибка записи логируется и не возвращается.
func (s *Sync) Record(ctx context.Context, order model.Order) {
	order.Date = s.clock.Now().Format(DateLayout)
	s.write(context.WithoutCancel(ctx), order)
}

func (s *Sync) write(ctx context.Context, order model.Order) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.storage.AppendOrder(ctx, order)
	})
	if err != nil {
		s.logger.Error("record order error",
			zap.Error(err),
			zap.String("email", order.Email),
			zap.String("price", order.Price),
			zap.String("date", order.Date),
		)
		return
	}

	s.logger.Info("payment added", zap.String("email", order.Email), zap.String("price", order.Price))
}

// Queue передаёт заказы фоновому обработчику через буферизованный канал.
// Если буфер заполнен или очередь закрыта, заказ записывается сразу.
type Queue struct {
	writer *Sync
	orders chan model.Order
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewQueue создаёт очередь заказов заданного размера поверх синхронного регистратора.
func NewQueue(s *Sync, size int, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		writer: s,
		orders: make(chan model.Order, size),
		logger: logger,
	}
}

// Record проставляет дату в момент приёма и ставит заказ в очередь.
func (q *Queue) Record(ctx context.Context, order model.Order) {
	order.Date = q.writer.clock.Now().Format(DateLayout)

	q.mu.RLock()
	if !q.closed {
		select {
		case q.orders <- order:
			q.mu.RUnlock()
			return
		default:
			q.logger.Warn("order queue is full, writing inline")
		}
	}
	q.mu.RUnlock()

	q.writer.write(context.WithoutCancel(ctx), order)
}

// Run обрабатывает очередь до вызова Close и записывает всё, что осталось в буфере.
func (q *Queue) Run() {
	for order := range q.orders {
		q.writer.write(context.Background(), order)
	}
	q.logger.Info("order queue drained")
}

// Close прекращает приём заказов в очередь. Повторный вызов безопасен.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.orders)
}
