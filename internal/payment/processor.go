package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/photostore/internal/model"
)

// IdentityResolver определяет покупателя, от имени которого записывается оплата.
type IdentityResolver interface {
	Resolve(ctx context.Context, orderID string) string
}

// Recorder записывает успешную оплату. Ошибки хранилища обрабатываются внутри.
type Recorder interface {
	Record(ctx context.Context, order model.Order)
}

// Processor выполняет полный цикл обработки обратного вызова шлюза.
type Processor struct {
	privateKey string
	identities IdentityResolver
	recorder   Recorder
	logger     *zap.Logger
}

// NewProcessor создаёт обработчик обратных вызовов с общим секретом шлюза.
func NewProcessor(privateKey string, identities IdentityResolver, recorder Recorder, logger *zap.Logger) (*Processor, error) {
	if privateKey == "" {
		return nil, errors.New("payment private key is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Processor{
		privateKey: privateKey,
		identities: identities,
		recorder:   recorder,
		logger:     logger,
	}, nil
}

// Handle проверяет подпись, декодирует данные и выполняет действие для статуса платежа.
// Ответ шлюзу зависит только от подписи и статуса, но не от результата записи заказа.
func (p *Processor) Handle(ctx context.Context, env model.WebhookEnvelope) Outcome {
	if !Verify(env.Data, env.Signature, p.privateKey) {
		p.logger.Warn("webhook signature is not proved", zap.Int("data_len", len(env.Data)))
		return Forged()
	}

	payload, err := Decode(env.Data)
	if err != nil {
		p.logger.Error("verified webhook payload cannot be decoded",
			zap.Error(err),
			zap.Int("data_len", len(env.Data)),
		)
		return ServerError(err)
	}

	var identity string
	if payload.Status == model.PaymentStatusSuccess {
		identity = p.identities.Resolve(ctx, payload.OrderID)
	}

	out := Dispatch(payload, identity)

	if errors.Is(out.Err, ErrUnrecognizedStatus) {
		p.logger.Warn("webhook with unrecognized status",
			zap.String("status", string(payload.Status)),
			zap.String("order_id", payload.OrderID),
		)
		return out
	}

	p.logger.Info("webhook processed",
		zap.String("status", string(payload.Status)),
		zap.String("order_id", payload.OrderID),
		zap.Int("http_status", out.HTTPStatus),
	)

	if out.Order != nil {
		if identity == "" {
			p.logger.Warn("successful payment without known payer", zap.String("order_id", payload.OrderID))
		}
		p.recorder.Record(ctx, *out.Order)
	}

	return out
}
