// Package passwordpolicy 校验画廊访问密码强度
package passwordpolicy

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// bcrypt 只使用前 72 字节
const MaxBytes = 72

var (
	ErrTooShort    = errors.New("password is too short")
	ErrTooLong     = errors.New("password exceeds 72 bytes")
	ErrTooSimple   = errors.New("password must mix at least three of: lowercase, uppercase, digits, symbols")
	ErrCompromised = errors.New("password appears in a list of compromised passwords")
)

//go:embed compromised.txt
var compromisedList string

// Policy 密码强度策略
type Policy struct {
	MinLength  int
	MinClasses int
	blocked    map[string]struct{}
}

// New 创建策略，blocked 为空时使用内置的泄露密码列表
func New(minLength int, blocked ...string) *Policy {
	p := &Policy{MinLength: minLength, MinClasses: 3, blocked: make(map[string]struct{})}
	if len(blocked) == 0 {
		scanner := bufio.NewScanner(strings.NewReader(compromisedList))
		for scanner.Scan() {
			blocked = append(blocked, scanner.Text())
		}
	}
	for _, b := range blocked {
		if b = strings.TrimSpace(b); b != "" {
			p.blocked[strings.ToLower(b)] = struct{}{}
		}
	}
	return p
}

// Check 返回第一个不满足的规则
func (p *Policy) Check(raw string) error {
	if len([]rune(raw)) < p.MinLength {
		return fmt.Errorf("%w: minimum %d characters", ErrTooShort, p.MinLength)
	}
	if len(raw) > MaxBytes {
		return ErrTooLong
	}
	if classes(raw) < p.MinClasses {
		return ErrTooSimple
	}
	if _, ok := p.blocked[strings.ToLower(raw)]; ok {
		return ErrCompromised
	}
	return nil
}

func classes(raw string) int {
	var lower, upper, digit, symbol bool
	for _, r := range raw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	n := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			n++
		}
	}
	return n
}
