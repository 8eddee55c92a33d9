package utils

import (
	"net"
	"strings"
	"unicode/utf8"
)

const maxUserAgentLen = 512

// NormalizeIP 去掉端口和 IPv6 zone，无法解析时原样返回裁剪后的字符串
func NormalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	if i := strings.IndexByte(raw, '%'); i >= 0 {
		raw = raw[:i]
	}
	if ip := net.ParseIP(raw); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return raw
}

// TruncateUserAgent 限制入库长度，按 rune 截断
func TruncateUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if len(ua) <= maxUserAgentLen {
		return ua
	}
	cut := ua[:maxUserAgentLen]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
