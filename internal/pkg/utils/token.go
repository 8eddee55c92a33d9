package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// TokenBytes 会话和链接 token 的随机字节数 (256 bit)
const TokenBytes = 32

// GenerateToken 生成 base64url 编码的随机 token
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机 token 失败: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenHasher 使用服务端密钥对 token 做 HMAC-SHA256，数据库只保存结果
type TokenHasher struct {
	secret []byte
}

func NewTokenHasher(secret string) *TokenHasher {
	return &TokenHasher{secret: []byte(secret)}
}

// Hash 返回 64 位十六进制摘要
func (h *TokenHasher) Hash(raw string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
