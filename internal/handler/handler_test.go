package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/photostore/internal/identity"
	"github.com/mmeshcher/photostore/internal/middleware"
	"github.com/mmeshcher/photostore/internal/model"
	"github.com/mmeshcher/photostore/internal/payment"
	"github.com/mmeshcher/photostore/internal/recorder"
	"github.com/mmeshcher/photostore/internal/repository"
	"github.com/mmeshcher/photostore/internal/service"
)

const testPrivateKey = "K"

type stubService struct {
	registerSess *model.Session
	registerErr  error

	authSess *model.Session
	authErr  error

	logoutID  string
	logoutErr error

	checkout    *model.Checkout
	checkoutErr error
	paidBy      *model.Session

	ordersResp []model.Order
	ordersErr  error
}

func (s *stubService) RegisterUser(ctx context.Context, name, email, password string) (*model.Session, error) {
	return s.registerSess, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, email, password string) (*model.Session, error) {
	return s.authSess, s.authErr
}

func (s *stubService) Logout(ctx context.Context, id string) error {
	s.logoutID = id
	return s.logoutErr
}

func (s *stubService) RequestPayment(ctx context.Context, sess *model.Session, amount, description string) (*model.Checkout, error) {
	s.paidBy = sess
	return s.checkout, s.checkoutErr
}

func (s *stubService) GetOrders(ctx context.Context, sess *model.Session) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

type stubSessions struct {
	sessions map[string]*model.Session
}

func (s *stubSessions) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return nil, repository.ErrSessionNotFound
}

type memoryOrders struct {
	mu     sync.Mutex
	orders []model.Order
	err    error
}

func (m *memoryOrders) AppendOrder(ctx context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *memoryOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, 3, 12, 22, 39, 20, 0, time.Local)
}

type testEnv struct {
	router   http.Handler
	service  *stubService
	storage  *memoryOrders
	slot     *identity.Slot
	auth     *middleware.AuthMiddleware
	sessions *stubSessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()

	env := &testEnv{
		service:  &stubService{},
		storage:  &memoryOrders{},
		slot:     &identity.Slot{},
		sessions: &stubSessions{sessions: map[string]*model.Session{}},
	}

	processor, err := payment.NewProcessor(
		testPrivateKey,
		identity.NewResolver(nil, env.slot, logger),
		recorder.NewSync(env.storage, fixedClock{}, logger),
		logger,
	)
	require.NoError(t, err)

	env.auth = middleware.NewAuthMiddleware("test-secret", env.sessions, logger)
	h := NewHandler(env.service, processor, logger, env.auth)
	env.router = h.SetupRouter([]string{"http://localhost:5173"}, middleware.NewRateLimiter(100, 100))

	return env
}

func (e *testEnv) login(t *testing.T, sess *model.Session) *http.Cookie {
	t.Helper()

	e.sessions.sessions[sess.ID] = sess
	w := httptest.NewRecorder()
	e.auth.SetSessionCookie(w, sess)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func signedEnvelope(rawData string) model.WebhookEnvelope {
	data := base64.StdEncoding.EncodeToString([]byte(rawData))
	return model.WebhookEnvelope{Data: data, Signature: payment.Sign(data, testPrivateKey)}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func flip(s string) string {
	b := []byte(s)
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	return string(b)
}

func TestWebhook(t *testing.T) {
	valid := signedEnvelope(`{"status":"success","amount":42}`)

	tests := []struct {
		name       string
		env        model.WebhookEnvelope
		wantStatus int
		wantBody   map[string]string
		wantOrders int
	}{
		{
			name:       "success records order",
			env:        valid,
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"message": "payment successful"},
			wantOrders: 1,
		},
		{
			name:       "tampered signature",
			env:        model.WebhookEnvelope{Data: valid.Data, Signature: flip(valid.Signature)},
			wantStatus: http.StatusConflict,
			wantBody:   map[string]string{"message": "refund"},
		},
		{
			name:       "failure",
			env:        signedEnvelope(`{"status":"failure","amount":42}`),
			wantStatus: payment.StatusPaymentFailed,
			wantBody:   map[string]string{"error": "payment failed"},
		},
		{
			name:       "reversed",
			env:        signedEnvelope(`{"status":"reversed","amount":42}`),
			wantStatus: http.StatusLocked,
			wantBody:   map[string]string{"message": "refund"},
		},
		{
			name:       "error",
			env:        signedEnvelope(`{"status":"error"}`),
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]string{"error": "payment not successful"},
		},
		{
			name:       "unrecognized status",
			env:        signedEnvelope(`{"status":"sandbox"}`),
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   map[string]string{"error": "unrecognized status"},
		},
		{
			name:       "signed garbage",
			env:        model.WebhookEnvelope{Data: "%%%not-base64", Signature: payment.Sign("%%%not-base64", testPrivateKey)},
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]string{"error": "server error"},
		},
		{
			name:       "signed non-json",
			env:        signedEnvelope(`not json`),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]string{"error": "server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.slot.Set("buyer@example.com")

			w := env.do(jsonRequest(t, http.MethodPost, "/", tt.env))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, decodeBody(t, w))
			assert.Equal(t, tt.wantOrders, env.storage.count())
		})
	}
}

func TestWebhook_SuccessOrderFields(t *testing.T) {
	env := newTestEnv(t)
	env.slot.Set("buyer@example.com")

	w := env.do(jsonRequest(t, http.MethodPost, "/", signedEnvelope(`{"status":"success","amount":42}`)))
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, env.storage.orders, 1)
	assert.Equal(t, model.Order{Price: "42", Email: "buyer@example.com", Date: "2024-03-12 22:39:20"}, env.storage.orders[0])
}

func TestWebhook_StorageFailureDoesNotChangeResponse(t *testing.T) {
	env := newTestEnv(t)
	env.storage.err = errors.New("connection refused")

	w := env.do(jsonRequest(t, http.MethodPost, "/", signedEnvelope(`{"status":"success","amount":42}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"message": "payment successful"}, decodeBody(t, w))
}

func TestWebhook_FormBody(t *testing.T) {
	env := newTestEnv(t)
	signed := signedEnvelope(`{"status":"success","amount":"10.50"}`)

	form := url.Values{"data": {signed.Data}, "signature": {signed.Signature}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.storage.orders, 1)
	assert.Equal(t, "10.50", env.storage.orders[0].Price)
}

func TestWebhook_UnreadableBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, map[string]string{"message": "refund"}, decodeBody(t, w))
	assert.Zero(t, env.storage.count())
}

func TestWebhook_CompressedFormBody(t *testing.T) {
	env := newTestEnv(t)
	signed := signedEnvelope(`{"status":"success","amount":42.50}`)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(url.Values{"data": {signed.Data}, "signature": {signed.Signature}}.Encode()))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Encoding", "gzip")

	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"message": "payment successful"}, decodeBody(t, w))
	require.Len(t, env.storage.orders, 1)
	assert.Equal(t, "42.5", env.storage.orders[0].Price)
}

func TestWebhook_CorruptCompressedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("data=abc&signature=def"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Encoding", "gzip")

	w := env.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"error": "invalid input"}, decodeBody(t, w))
	assert.Zero(t, env.storage.count())
}

func TestLiveness(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hi get", w.Body.String())
}

func TestRegister(t *testing.T) {
	validBody := map[string]string{"username": "test", "userpassword": "secret", "useremail": "test@gmail.com"}

	tests := []struct {
		name       string
		body       any
		loggedIn   bool
		err        error
		wantStatus int
		wantBody   map[string]string
		wantCookie bool
	}{
		{
			name:       "created",
			body:       validBody,
			wantStatus: http.StatusCreated,
			wantBody:   map[string]string{"message": "user added"},
			wantCookie: true,
		},
		{
			name:       "active session",
			body:       validBody,
			loggedIn:   true,
			wantStatus: http.StatusConflict,
			wantBody:   map[string]string{"error": "an active session exist"},
		},
		{
			name:       "email in use",
			body:       validBody,
			err:        repository.ErrUserExists,
			wantStatus: http.StatusConflict,
			wantBody:   map[string]string{"error": "email in use"},
		},
		{
			name:       "invalid email",
			body:       map[string]string{"username": "test", "userpassword": "secret", "useremail": "nope"},
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]string{"error": "invalid input"},
		},
		{
			name:       "hashing error",
			body:       validBody,
			err:        service.ErrHashing,
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]string{"error": "hashing error"},
		},
		{
			name:       "storage error",
			body:       validBody,
			err:        errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]string{"error": "server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.service.registerErr = tt.err
			env.service.registerSess = &model.Session{ID: "sess_new", Name: "test", ExpiresAt: time.Now().Add(time.Hour)}

			req := jsonRequest(t, http.MethodPost, "/users/add", tt.body)
			if tt.loggedIn {
				req.AddCookie(env.login(t, &model.Session{ID: "sess_old", Role: model.RoleUser}))
			}

			w := env.do(req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, decodeBody(t, w))
			assert.Equal(t, tt.wantCookie, len(w.Result().Cookies()) > 0)
		})
	}
}

func TestLogin(t *testing.T) {
	t.Run("logged in", func(t *testing.T) {
		env := newTestEnv(t)
		env.service.authSess = &model.Session{ID: "sess_1", Name: "test", Role: model.RoleAdmin, ExpiresAt: time.Now().Add(time.Hour)}

		w := env.do(jsonRequest(t, http.MethodPost, "/users/log-in", map[string]string{"useremail": "a@b.c", "userpassword": "x"}))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]string{"message": "logged in", "user": "test", "role": "admin"}, decodeBody(t, w))
		assert.NotEmpty(t, w.Result().Cookies())
	})

	t.Run("invalid credentials", func(t *testing.T) {
		env := newTestEnv(t)
		env.service.authErr = service.ErrInvalidCredentials

		w := env.do(jsonRequest(t, http.MethodPost, "/users/log-in", map[string]string{"useremail": "a@b.c", "userpassword": "x"}))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, map[string]string{"error": "invalid credentials"}, decodeBody(t, w))
	})

	t.Run("active session", func(t *testing.T) {
		env := newTestEnv(t)
		req := jsonRequest(t, http.MethodPost, "/users/log-in", map[string]string{"useremail": "a@b.c", "userpassword": "x"})
		req.AddCookie(env.login(t, &model.Session{ID: "sess_old"}))

		w := env.do(req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, map[string]string{"error": "an active session exist"}, decodeBody(t, w))
	})
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.service.authErr = service.ErrInvalidCredentials

	h := NewHandler(env.service, nil, nil, env.auth)
	router := h.SetupRouter(nil, middleware.NewRateLimiter(1, 1))

	var codes []int
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/users/log-in", map[string]string{"useremail": "a@b.c", "userpassword": "x"}))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestSessionEndpoints(t *testing.T) {
	sess := &model.Session{ID: "sess_1", UserID: 1, Name: "test", Email: "test@gmail.com", Role: model.RoleUser}

	t.Run("session hook", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/users/session-hook", nil)
		req.AddCookie(env.login(t, sess))

		w := env.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]string{"user": "test", "email": "test@gmail.com", "role": "user"}, decodeBody(t, w))

		w = env.do(httptest.NewRequest(http.MethodPost, "/users/session-hook", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, map[string]string{"error": "no active session"}, decodeBody(t, w))
	})

	t.Run("get role", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodGet, "/users/get-role", nil)
		req.AddCookie(env.login(t, sess))

		w := env.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]string{"role": "user"}, decodeBody(t, w))

		w = env.do(httptest.NewRequest(http.MethodGet, "/users/get-role", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, map[string]string{"error": "Unauthorized"}, decodeBody(t, w))
	})

	t.Run("log out", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/users/log-out", nil)
		req.AddCookie(env.login(t, sess))

		w := env.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]string{"message": "logged out"}, decodeBody(t, w))
		assert.Equal(t, "sess_1", env.service.logoutID)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)
		assert.Negative(t, cookies[0].MaxAge)
	})
}

func TestRequestPayment(t *testing.T) {
	sess := &model.Session{ID: "sess_1", Email: "buyer@example.com", Role: model.RoleUser}

	t.Run("checkout", func(t *testing.T) {
		env := newTestEnv(t)
		env.service.checkout = &model.Checkout{Data: "ZGF0YQ==", Signature: "c2ln"}

		req := jsonRequest(t, http.MethodPost, "/users/hashing", map[string]string{"amount": "120.50", "description": "Print"})
		req.AddCookie(env.login(t, sess))

		w := env.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]string{"data": "ZGF0YQ==", "signature": "c2ln"}, decodeBody(t, w))
		require.NotNil(t, env.service.paidBy)
		assert.Equal(t, "buyer@example.com", env.service.paidBy.Email)
	})

	t.Run("invalid amount", func(t *testing.T) {
		env := newTestEnv(t)
		req := jsonRequest(t, http.MethodPost, "/users/hashing", map[string]string{"amount": "-1", "description": "Print"})
		req.AddCookie(env.login(t, sess))

		w := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, env.service.paidBy)
	})

	t.Run("no session", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(jsonRequest(t, http.MethodPost, "/users/hashing", map[string]string{"amount": "1", "description": "Print"}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetOrders(t *testing.T) {
	sess := &model.Session{ID: "sess_1", Email: "buyer@example.com", Role: model.RoleUser}

	t.Run("orders", func(t *testing.T) {
		env := newTestEnv(t)
		env.service.ordersResp = []model.Order{{ID: 1, Price: "42", Email: "buyer@example.com", Date: "2024-03-12 22:39:20"}}

		req := httptest.NewRequest(http.MethodPost, "/users/get-table", nil)
		req.AddCookie(env.login(t, sess))

		w := env.do(req)
		assert.Equal(t, http.StatusOK, w.Code)

		var got []model.Order
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, env.service.ordersResp, got)
	})

	t.Run("empty", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/users/get-table", nil)
		req.AddCookie(env.login(t, sess))

		w := env.do(req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
