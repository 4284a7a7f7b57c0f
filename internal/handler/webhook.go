package handler

import (
	"errors"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/photostore/internal/model"
	"github.com/mmeshcher/photostore/internal/payment"
)

var errBadEnvelope = errors.New("malformed webhook body")

// Liveness отвечает на GET / для проверки доступности сервиса.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("hi get"))
}

// Webhook принимает обратный вызов платёжного шлюза.
// Шлюз присылает форму data=...&signature=..., тело в JSON тоже принимается.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	env, err := readEnvelope(r)
	if err != nil {
		h.logger.Warn("unreadable webhook body", zap.Error(err))
		out := payment.Forged()
		writeJSON(w, out.HTTPStatus, out.Body)
		return
	}

	out := h.webhook.Handle(r.Context(), env)
	writeJSON(w, out.HTTPStatus, out.Body)
}

func readEnvelope(r *http.Request) (model.WebhookEnvelope, error) {
	var env model.WebhookEnvelope

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
		if err := r.ParseForm(); err != nil {
			return env, errors.Join(errBadEnvelope, err)
		}
		env.Data = r.PostForm.Get("data")
		env.Signature = r.PostForm.Get("signature")
		return env, nil
	}

	if err := decodeJSON(r, &env); err != nil {
		return env, errors.Join(errBadEnvelope, err)
	}
	return env, nil
}
