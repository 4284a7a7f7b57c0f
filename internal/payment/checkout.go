package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mmeshcher/photostore/internal/model"
)

const (
	checkoutVersion = 3
	checkoutAction  = "pay"
)

// CheckoutConfig содержит параметры формы оплаты шлюза.
type CheckoutConfig struct {
	PublicKey  string
	PrivateKey string
	Currency   string
	ServerURL  string
	ResultURL  string
}

// CheckoutRequest описывает один платёж, который покупатель собирается провести.
type CheckoutRequest struct {
	OrderID     string
	Amount      string
	Description string
}

type checkoutParams struct {
	PublicKey   string      `json:"public_key"`
	Version     int         `json:"version"`
	Action      string      `json:"action"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	Description string      `json:"description"`
	OrderID     string      `json:"order_id"`
	ServerURL   string      `json:"server_url,omitempty"`
	ResultURL   string      `json:"result_url,omitempty"`
}

// BuildCheckout кодирует параметры платежа и подписывает их тем же способом, что и шлюз.
func BuildCheckout(cfg CheckoutConfig, req CheckoutRequest) (*model.Checkout, error) {
	params := checkoutParams{
		PublicKey:   cfg.PublicKey,
		Version:     checkoutVersion,
		Action:      checkoutAction,
		Amount:      json.Number(req.Amount),
		Currency:    cfg.Currency,
		Description: req.Description,
		OrderID:     req.OrderID,
		ServerURL:   cfg.ServerURL,
		ResultURL:   cfg.ResultURL,
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout params: %w", err)
	}

	data := base64.StdEncoding.EncodeToString(raw)

	return &model.Checkout{
		Data:      data,
		Signature: Sign(data, cfg.PrivateKey),
	}, nil
}
