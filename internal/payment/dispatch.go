package payment

import (
	"errors"
	"net/http"

	"github.com/mmeshcher/photostore/internal/model"
)

// StatusPaymentFailed задаёт нестандартный код ответа, который шлюз ожидает на статус failure.
const StatusPaymentFailed = 420

var (
	// ErrForgery означает, что подпись обратного вызова не совпала.
	ErrForgery = errors.New("webhook signature mismatch")
	// ErrUnrecognizedStatus означает, что шлюз прислал неизвестный статус.
	ErrUnrecognizedStatus = errors.New("unrecognized payment status")
)

// Outcome описывает ответ шлюзу и побочный эффект обработки.
// Order заполнен только тогда, когда заказ нужно записать.
type Outcome struct {
	HTTPStatus int
	Body       map[string]string
	Order      *model.Order
	Err        error
}

func message(text string) map[string]string {
	return map[string]string{"message": text}
}

func failure(text string) map[string]string {
	return map[string]string{"error": text}
}

// Forged возвращает ответ на обратный вызов с неверной подписью.
// Тело "refund" совпадает с ответом на reversed, так исторически отвечает сервис.
func Forged() Outcome {
	return Outcome{
		HTTPStatus: http.StatusConflict,
		Body:       message("refund"),
		Err:        ErrForgery,
	}
}

// ServerError возвращает ответ на данные, прошедшие проверку подписи, но не разобранные.
func ServerError(err error) Outcome {
	return Outcome{
		HTTPStatus: http.StatusInternalServerError,
		Body:       failure("server error"),
		Err:        err,
	}
}

// Dispatch сопоставляет статус платежа с ответом шлюзу и побочным эффектом.
// Дата заказа проставляется при записи.
func Dispatch(p *model.StatusPayload, identity string) Outcome {
	switch p.Status {
	case model.PaymentStatusSuccess:
		return Outcome{
			HTTPStatus: http.StatusOK,
			Body:       message("payment successful"),
			Order: &model.Order{
				Price: p.Amount,
				Email: identity,
			},
		}
	case model.PaymentStatusError:
		return Outcome{
			HTTPStatus: http.StatusBadRequest,
			Body:       failure("payment not successful"),
		}
	case model.PaymentStatusFailure:
		return Outcome{
			HTTPStatus: StatusPaymentFailed,
			Body:       failure("payment failed"),
		}
	case model.PaymentStatusReversed:
		return Outcome{
			HTTPStatus: http.StatusLocked,
			Body:       message("refund"),
		}
	default:
		return Outcome{
			HTTPStatus: http.StatusUnprocessableEntity,
			Body:       failure("unrecognized status"),
			Err:        ErrUnrecognizedStatus,
		}
	}
}
