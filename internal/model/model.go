// Package model содержит доменные сущности бэкенда фотомагазина.
package model

import (
	"encoding/json"
	"time"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User представляет зарегистрированного покупателя или администратора.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Session описывает активную сессию пользователя.
type Session struct {
	ID        string
	UserID    int64
	Name      string
	Email     string
	Role      Role
	ExpiresAt time.Time
}

// Order описывает запись об успешной оплате.
// Цена и дата хранятся строками, как их отдаёт платёжный шлюз и часы сервера.
type Order struct {
	ID    int64  `json:"id"`
	Price string `json:"price"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

// PaymentStatus описывает статус платежа, сообщённый шлюзом.
type PaymentStatus string

const (
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusError    PaymentStatus = "error"
	PaymentStatusFailure  PaymentStatus = "failure"
	PaymentStatusReversed PaymentStatus = "reversed"
)

// WebhookEnvelope содержит тело обратного вызова платёжного шлюза.
type WebhookEnvelope struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// StatusPayload содержит проверенные и декодированные данные обратного вызова.
// Поля, которые сервис не знает, сохраняются в Extra без изменений.
type StatusPayload struct {
	Status  PaymentStatus
	Amount  string
	OrderID string
	Extra   map[string]json.RawMessage
}

// PaymentIntent связывает идентификатор платежа, отправленный в шлюз, с покупателем.
type PaymentIntent struct {
	OrderID     string
	Email       string
	Amount      string
	Description string
	CreatedAt   time.Time
}

// Checkout содержит пару data/signature для формы оплаты шлюза.
type Checkout struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}
