// Package allowlist 提供分享链接使用的 IP/CIDR 和邮箱域名白名单
// 条目在链接创建时解析校验，兑换时只做匹配
package allowlist

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrEmptyEntry    = errors.New("allowlist: empty entry")
	ErrInvalidIP     = errors.New("allowlist: invalid ip or cidr")
	ErrInvalidDomain = errors.New("allowlist: invalid email domain")
)

// IPList 已解析的 IP/CIDR 白名单，空列表表示不限制
type IPList struct {
	nets []*net.IPNet
}

// ParseIPList 解析 IP 或 CIDR 条目，单个 IP 视为 /32 或 /128
func ParseIPList(entries []string) (IPList, error) {
	list := IPList{nets: make([]*net.IPNet, 0, len(entries))}
	for _, e := range entries {
		n, err := parseCIDRorIP(e)
		if err != nil {
			return IPList{}, fmt.Errorf("%w: %q", err, e)
		}
		list.nets = append(list.nets, n)
	}
	return list, nil
}

func parseCIDRorIP(s string) (*net.IPNet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyEntry
	}
	if strings.Contains(s, "/") {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, ErrInvalidIP
		}
		return n, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, ErrInvalidIP
	}
	bits := 128
	if v4 := ip.To4(); v4 != nil {
		bits = 32
		ip = v4
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// Empty 是否未配置任何条目
func (l IPList) Empty() bool {
	return len(l.nets) == 0
}

// Contains 判断 IP 是否在白名单内，空白名单放行，无法解析的 IP 拒绝
func (l IPList) Contains(rawIP string) bool {
	if l.Empty() {
		return true
	}
	ip := net.ParseIP(strings.TrimSpace(rawIP))
	if ip == nil {
		return false
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Strings 返回规范化后的条目，用于入库
func (l IPList) Strings() []string {
	out := make([]string, 0, len(l.nets))
	for _, n := range l.nets {
		out = append(out, n.String())
	}
	return out
}

// DomainList 邮箱域名白名单，匹配域名本身及其子域名
type DomainList struct {
	domains []string
}

// ParseDomainList 解析域名条目，允许写成 "@acme.com"，统一转为小写
func ParseDomainList(entries []string) (DomainList, error) {
	list := DomainList{domains: make([]string, 0, len(entries))}
	for _, e := range entries {
		d := strings.ToLower(strings.TrimSpace(e))
		d = strings.TrimPrefix(d, "@")
		d = strings.TrimSuffix(d, ".")
		if d == "" {
			return DomainList{}, ErrEmptyEntry
		}
		if !validDomain(d) {
			return DomainList{}, fmt.Errorf("%w: %q", ErrInvalidDomain, e)
		}
		list.domains = append(list.domains, d)
	}
	return list, nil
}

func validDomain(d string) bool {
	if len(d) > 253 || !strings.Contains(d, ".") {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

func (l DomainList) Empty() bool {
	return len(l.domains) == 0
}

// Matches 判断邮箱地址的域名是否在白名单内
// 空白名单放行，未提供邮箱或格式错误时拒绝
func (l DomainList) Matches(email string) bool {
	if l.Empty() {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	for _, d := range l.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func (l DomainList) Strings() []string {
	out := make([]string, len(l.domains))
	copy(out, l.domains)
	return out
}
