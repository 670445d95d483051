package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrTokenInvalid)
	ErrWrongTokenKind = errors.New("wrong token kind")
	ErrUnknownKind    = errors.New("unknown token kind")
)

// Kind 区分 access 与 refresh 两类 token，只允许这两个取值。
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) valid() bool { return k == KindAccess || k == KindRefresh }

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if !Kind(s).valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	*k = Kind(s)
	return nil
}

type Claims struct {
	UserID uint `json:"uid"`
	Kind   Kind `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens 负责签发与解析两类 JWT，两者共用同一个 HMAC 密钥。
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(secret string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// NewTokensFromLifetimes 接受 "15m"、"10h"、"7d" 这类配置字符串。
func NewTokensFromLifetimes(secret, access, refresh string) (*Tokens, error) {
	at, err := ParseLifetime(access)
	if err != nil {
		return nil, fmt.Errorf("access lifetime: %w", err)
	}
	rt, err := ParseLifetime(refresh)
	if err != nil {
		return nil, fmt.Errorf("refresh lifetime: %w", err)
	}
	return NewTokens(secret, at, rt), nil
}

// Sign 签发指定类型的 token，返回值包含过期时间，供 refresh token 落库使用。
func (t *Tokens) Sign(userID uint, kind Kind) (string, time.Time, error) {
	if !kind.valid() {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	ttl := t.accessTTL
	if kind == KindRefresh {
		ttl = t.refreshTTL
	}
	now := t.now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse 校验签名与有效期，不检查类型。
func (t *Tokens) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Kind.valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseKind 在 Parse 的基础上要求 token 类型匹配。
func (t *Tokens) ParseKind(tokenStr string, want Kind) (*Claims, error) {
	claims, err := t.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != want {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}

// ParseLifetime 解析带单位后缀的时长：d（天）、h（小时）、m（分钟）。
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid lifetime %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid lifetime %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	}
	return 0, fmt.Errorf("invalid lifetime unit in %q", s)
}
