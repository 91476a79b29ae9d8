package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrActorTokenInvalid 身份令牌无效
var ErrActorTokenInvalid = errors.New("actor token invalid")

// ActorClaims 外部身份系统签发的 JWT 声明
type ActorClaims struct {
	ActorID    uint   `json:"actor_id"`
	ActorType  string `json:"actor_type"`
	MerchantID uint   `json:"merchant_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor 转换为操作者
func (c *ActorClaims) Actor() Actor {
	return Actor{
		ID:         c.ActorID,
		Type:       strings.ToLower(strings.TrimSpace(c.ActorType)),
		MerchantID: c.MerchantID,
	}
}

// SignActorToken 签发身份令牌（演示数据与测试使用，生产环境由身份系统签发）
func SignActorToken(secret, issuer string, actor Actor, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("actor token secret is empty")
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := ActorClaims{
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		MerchantID: actor.MerchantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    strings.TrimSpace(issuer),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ParseActorToken 校验身份令牌并返回操作者，issuer 为空时不校验签发方
func ParseActorToken(secret, issuer, raw string) (Actor, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	claims := &ActorClaims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || token == nil || !token.Valid {
		return Actor{}, ErrActorTokenInvalid
	}
	actor := claims.Actor()
	switch {
	case actor.IsCustomer():
		return actor, nil
	case actor.IsStaff() && actor.MerchantID > 0:
		return actor, nil
	}
	return Actor{}, ErrActorTokenInvalid
}
