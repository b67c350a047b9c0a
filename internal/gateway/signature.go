package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer 复算网关回调签名：HMAC-SHA256(secret, orderId + "|" + paymentId)，小写 hex。
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign 返回该 (orderId, paymentId) 对应的期望签名。
func (s *Signer) Sign(orderID, paymentID string) string {
	return hex.EncodeToString(s.sum(orderID, paymentID))
}

// Verify 按字节常量时间比较；hex 大小写不敏感，非法 hex 或长度不同直接返回 false。
func (s *Signer) Verify(orderID, paymentID, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(s.sum(orderID, paymentID), got)
}

func (s *Signer) sum(orderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return mac.Sum(nil)
}
