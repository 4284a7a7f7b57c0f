// Package identity определяет покупателя, которому принадлежит оплата из обратного вызова шлюза.
package identity

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/photostore/internal/model"
	"github.com/mmeshcher/photostore/internal/repository"
)

// Slot хранит email покупателя, последним начавшего оплату.
// Значение общее для всего процесса, поэтому параллельные оплаты разных покупателей перезаписывают друг друга.
type Slot struct {
	mu    sync.RWMutex
	email string
}

// Set запоминает email покупателя.
func (s *Slot) Set(email string) {
	s.mu.Lock()
	s.email = email
	s.mu.Unlock()
}

// CurrentIdentity возвращает последний сохранённый email без очистки.
func (s *Slot) CurrentIdentity() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.email, s.email != ""
}

// IntentStore описывает поиск намерения оплаты по идентификатору платежа.
type IntentStore interface {
	GetPaymentIntent(ctx context.Context, orderID string) (*model.PaymentIntent, error)
}

// Resolver ищет покупателя по order_id из данных шлюза и использует Slot, если order_id неизвестен.
type Resolver struct {
	intents IntentStore
	slot    *Slot
	logger  *zap.Logger
}

// NewResolver создаёт Resolver. intents может быть nil, тогда используется только Slot.
func NewResolver(intents IntentStore, slot *Slot, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		intents: intents,
		slot:    slot,
		logger:  logger,
	}
}

// Resolve возвращает email покупателя или пустую строку.
func (r *Resolver) Resolve(ctx context.Context, orderID string) string {
	if orderID != "" && r.intents != nil {
		intent, err := r.intents.GetPaymentIntent(ctx, orderID)
		switch {
		case err == nil:
			return intent.Email
		case errors.Is(err, repository.ErrIntentNotFound):
			r.logger.Warn("payment intent not found", zap.String("order_id", orderID))
		default:
			r.logger.Error("lookup payment intent", zap.Error(err), zap.String("order_id", orderID))
		}
	}

	if r.slot == nil {
		return ""
	}

	email, _ := r.slot.CurrentIdentity()
	return email
}
