package payment

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/mmeshcher/photostore/internal/model"
)

// DecodeError возвращается, если проверенные данные не удалось разобрать.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode payload: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode payload: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode декодирует base64-данные обратного вызова и разбирает их как JSON-объект.
func Decode(data string) (*model.StatusPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}

	if !utf8.Valid(raw) {
		return nil, &DecodeError{Reason: "invalid utf-8"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Reason: "payload is not an object"}
	}

	payload := &model.StatusPayload{
		Extra: make(map[string]json.RawMessage, len(fields)),
	}

	for key, value := range fields {
		switch key {
		case "status":
			var status string
			if err := json.Unmarshal(value, &status); err != nil {
				return nil, &DecodeError{Reason: "status is not a string", Err: err}
			}
			payload.Status = model.PaymentStatus(status)
		case "amount":
			amount, err := parseAmount(value)
			if err != nil {
				return nil, &DecodeError{Reason: "invalid amount", Err: err}
			}
			payload.Amount = amount
		case "order_id":
			var orderID string
			if err := json.Unmarshal(value, &orderID); err != nil {
				return nil, &DecodeError{Reason: "order_id is not a string", Err: err}
			}
			payload.OrderID = orderID
		default:
			payload.Extra[key] = value
		}
	}

	return payload, nil
}

// decimalAmount описывает строковую сумму: только десятичная запись, без NaN, Inf и экспоненты.
var decimalAmount = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// parseAmount возвращает сумму в текстовом виде.
// Число приводится к кратчайшей десятичной записи (42.50 -> 42.5, 1e2 -> 100),
// строка сохраняется как есть.
func parseAmount(value json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return "", nil
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	switch a := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(a.String(), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return "", fmt.Errorf("amount %s is out of range", a)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case string:
		if !decimalAmount.MatchString(a) {
			return "", fmt.Errorf("amount %q is not numeric", a)
		}
		return a, nil
	default:
		return "", fmt.Errorf("amount has unsupported type %T", v)
	}
}
