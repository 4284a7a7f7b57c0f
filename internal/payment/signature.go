// Package payment реализует проверку и обработку обратных вызовов платёжного шлюза LiqPay.
package payment

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
)

// Sign вычисляет подпись шлюза: base64(sha1(privateKey + data + privateKey)).
// Схема задана шлюзом и должна воспроизводиться побайтово.
func Sign(data, privateKey string) string {
	h := sha1.New()
	h.Write([]byte(privateKey))
	h.Write([]byte(data))
	h.Write([]byte(privateKey))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Verify сравнивает присланную подпись с ожидаемой за постоянное время.
func Verify(data, signature, privateKey string) bool {
	expected := Sign(data, privateKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
