// Package handler содержит HTTP-обработчики API фотомагазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/photostore/internal/middleware"
	"github.com/mmeshcher/photostore/internal/model"
	"github.com/mmeshcher/photostore/internal/payment"
	"github.com/mmeshcher/photostore/internal/repository"
	"github.com/mmeshcher/photostore/internal/service"
	"github.com/mmeshcher/photostore/internal/validation"
)

const maxBodySize = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, name, email, password string) (*model.Session, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	RequestPayment(ctx context.Context, sess *model.Session, amount, description string) (*model.Checkout, error)
	GetOrders(ctx context.Context, sess *model.Session) ([]model.Order, error)
}

// WebhookProcessor обрабатывает обратный вызов платёжного шлюза.
type WebhookProcessor interface {
	Handle(ctx context.Context, env model.WebhookEnvelope) payment.Outcome
}

// Handler реализует HTTP-обработчики API фотомагазина.
type Handler struct {
	service        Service
	webhook        WebhookProcessor
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, webhook WebhookProcessor, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		webhook:        webhook,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, text string) {
	writeJSON(w, status, map[string]string{"error": text})
}

func writeMessage(w http.ResponseWriter, status int, text string) {
	writeJSON(w, status, map[string]string{"message": text})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(v)
}

type registerRequest struct {
	Username     string `json:"username" validate:"required,max=100"`
	UserPassword string `json:"userpassword" validate:"required,max=72"`
	UserEmail    string `json:"useremail" validate:"required,email,max=254"`
}

// Register регистрирует пользователя и сразу открывает для него сессию.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
		writeError(w, http.StatusConflict, "an active session exist")
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	sess, err := h.service.RegisterUser(r.Context(), req.Username, req.UserEmail, req.UserPassword)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserExists):
			writeError(w, http.StatusConflict, "email in use")
		case errors.Is(err, service.ErrHashing):
			h.logger.Error("hash password error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "hashing error")
		default:
			h.logger.Error("register user error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server error")
		}
		return
	}

	h.authMiddleware.SetSessionCookie(w, sess)
	writeMessage(w, http.StatusCreated, "user added")
}

type loginRequest struct {
	UserEmail    string `json:"useremail" validate:"required"`
	UserPassword string `json:"userpassword" validate:"required"`
}

// Login выполняет аутентификацию пользователя и выдаёт cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
		writeError(w, http.StatusConflict, "an active session exist")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	sess, err := h.service.AuthenticateUser(r.Context(), req.UserEmail, req.UserPassword)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	h.authMiddleware.SetSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "logged in",
		"user":    sess.Name,
		"role":    string(sess.Role),
	})
}

// SessionHook сообщает фронтенду, кто сейчас вошёл.
func (h *Handler) SessionHook(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"user":  sess.Name,
		"email": sess.Email,
		"role":  string(sess.Role),
	})
}

// GetRole возвращает роль текущего пользователя.
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusConflict, "Unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"role": string(sess.Role)})
}

// Logout завершает сессию. Без сессии просто очищает cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), sess.ID); err != nil {
			h.logger.Error("logout error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
	}

	h.authMiddleware.ClearSessionCookie(w)
	writeMessage(w, http.StatusOK, "logged out")
}

type paymentRequest struct {
	Amount      string `json:"amount" validate:"required,amount"`
	Description string `json:"description" validate:"required,max=255"`
}

// RequestPayment готовит data/signature для формы оплаты.
func (h *Handler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	checkout, err := h.service.RequestPayment(r.Context(), sess, req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, "invalid input")
			return
		}
		h.logger.Error("request payment error", zap.Error(err), zap.Int64("userID", sess.UserID))
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, checkout)
}

// GetOrders возвращает заказы текущего пользователя. Администратор видит все заказы.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}

	orders, err := h.service.GetOrders(r.Context(), sess)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", sess.UserID))
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}
