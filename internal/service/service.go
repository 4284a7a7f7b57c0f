// Package service реализует бизнес-логику фотомагазина: пользователей, сессии, оплату и заказы.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/photostore/internal/identity"
	"github.com/mmeshcher/photostore/internal/model"
	"github.com/mmeshcher/photostore/internal/payment"
	"github.com/mmeshcher/photostore/internal/repository"
)

const (
	bcryptCost      = 10
	sessionTTL      = 24 * time.Hour
	sessionIDPrefix = "sess_"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrHashing возвращается, если пароль не удалось захешировать.
	ErrHashing = errors.New("hashing error")
	// ErrInvalidAmount возвращается, если сумма оплаты некорректна.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, name, email string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	GetOrdersByEmail(ctx context.Context, email string) ([]model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	CreatePaymentIntent(ctx context.Context, in *model.PaymentIntent) error
}

// Service содержит бизнес-логику фотомагазина.
type Service struct {
	repo       Repository
	checkout   payment.CheckoutConfig
	slot       *identity.Slot
	adminEmail string

	now          func() time.Time
	newOrderID   func() string
	newSessionID func() (string, error)
}

// NewService создаёт сервис. Покупатель, начавший оплату, дополнительно запоминается в slot.
func NewService(repo Repository, checkout payment.CheckoutConfig, slot *identity.Slot, adminEmail string) *Service {
	return &Service{
		repo:         repo,
		checkout:     checkout,
		slot:         slot,
		adminEmail:   CanonicalizeEmail(adminEmail),
		now:          time.Now,
		newOrderID:   uuid.NewString,
		newSessionID: generateSessionID,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CanonicalizeEmail приводит email к виду, в котором он хранится в БД.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrHashing)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHashing, err)
	}
	return hash, nil
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return sessionIDPrefix + hex.EncodeToString(b), nil
}

func (s *Service) roleFor(email string) model.Role {
	if s.adminEmail != "" && email == s.adminEmail {
		return model.RoleAdmin
	}
	return model.RoleUser
}

// RegisterUser регистрирует нового пользователя и открывает для него сессию.
func (s *Service) RegisterUser(ctx context.Context, name, email, password string) (*model.Session, error) {
	email = CanonicalizeEmail(email)

	hashed, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	role := s.roleFor(email)
	id, err := s.repo.CreateUser(ctx, name, email, hashed, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, repository.ErrUserExists
		}
		return nil, err
	}

	return s.openSession(ctx, &model.User{ID: id, Name: name, Email: email, Role: role})
}

// AuthenticateUser проверяет email и пароль и открывает новую сессию.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.Session, error) {
	u, err := s.repo.GetUserByEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.openSession(ctx, u)
}

func (s *Service) openSession(ctx context.Context, u *model.User) (*model.Session, error) {
	id, err := s.newSessionID()
	if err != nil {
		return nil, err
	}

	sess := &model.Session{
		ID:        id,
		UserID:    u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		ExpiresAt: s.now().Add(sessionTTL),
	}

	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession возвращает действующую сессию по идентификатору.
func (s *Service) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return s.repo.GetSession(ctx, id)
}

// Logout завершает сессию.
func (s *Service) Logout(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// SeedAdmin создаёт администратора по умолчанию, если его ещё нет.
func (s *Service) SeedAdmin(ctx context.Context, name, email, password string) (bool, error) {
	email = CanonicalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return false, err
	}

	if _, err := s.repo.CreateUser(ctx, name, email, hashed, model.RoleAdmin); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return false, nil
		}
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return true, nil
}

// RequestPayment готовит форму оплаты для покупателя из сессии.
// Сгенерированный order_id возвращается шлюзом в обратном вызове и по нему находится покупатель.
func (s *Service) RequestPayment(ctx context.Context, sess *model.Session, amount, description string) (*model.Checkout, error) {
	orderID := s.newOrderID()

	checkout, err := payment.BuildCheckout(s.checkout, payment.CheckoutRequest{
		OrderID:     orderID,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	err = s.repo.CreatePaymentIntent(ctx, &model.PaymentIntent{
		OrderID:     orderID,
		Email:       sess.Email,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	if s.slot != nil {
		s.slot.Set(sess.Email)
	}

	return checkout, nil
}

// GetOrders возвращает заказы покупателя. Администратору возвращаются все заказы.
func (s *Service) GetOrders(ctx context.Context, sess *model.Session) ([]model.Order, error) {
	if sess.Role == model.RoleAdmin {
		return s.repo.GetAllOrders(ctx)
	}
	return s.repo.GetOrdersByEmail(ctx, sess.Email)
}
