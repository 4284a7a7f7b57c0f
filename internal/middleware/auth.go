// Package middleware содержит HTTP middleware фотомагазина.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/photostore/internal/model"
	"github.com/mmeshcher/photostore/internal/repository"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionCookieName задаёт имя cookie с подписанным идентификатором сессии.
const SessionCookieName = "session_id"

// SessionLoader загружает действующую сессию по идентификатору.
type SessionLoader interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
}

// AuthMiddleware восстанавливает сессию пользователя по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
	sessions  SessionLoader
	logger    *zap.Logger
}

// NewAuthMiddleware создаёт AuthMiddleware. При пустом secret используется случайный ключ,
// и cookie перестают быть действительными после перезапуска.
func NewAuthMiddleware(secret string, sessions SessionLoader, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}

	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		sessions:  sessions,
		logger:    logger,
	}
}

// Middleware кладёт действующую сессию в контекст запроса, если она есть.
// Запрос без сессии передаётся дальше: решение об отказе принимает обработчик или Require.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		id, ok := a.parseCookie(cookie.Value)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := a.sessions.GetSession(r.Context(), id)
		if err != nil {
			if !errors.Is(err, repository.ErrSessionNotFound) {
				a.logger.Error("load session error", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require пропускает только запросы с действующей сессией.
func (a *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionFromContext(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no active session"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie выдаёт cookie для сессии.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    a.sign(sess.ID),
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie удаляет cookie сессии в браузере.
func (a *AuthMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) sign(id string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(id))
	return id + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(value string) (string, bool) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 {
		return "", false
	}

	id := value[:idx]
	expected := a.sign(id)[idx+1:]

	if !hmac.Equal([]byte(value[idx+1:]), []byte(expected)) {
		return "", false
	}
	return id, true
}

// GetSessionFromContext извлекает сессию из контекста запроса.
func GetSessionFromContext(ctx context.Context) (*model.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*model.Session)
	return sess, ok && sess != nil
}

// WithSession возвращает контекст с сессией. Используется в тестах обработчиков.
func WithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
