package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims are the fields a session token carries. TelegramID is zero for
// admin tokens.
type Claims struct {
	Subject    string
	Role       string
	TelegramID int64
}

func Issue(secret string, c Claims, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  c.Subject,
		"role": c.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if c.TelegramID != 0 {
		claims["tg"] = c.TelegramID
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// ParseAuth accepts a raw token or an "Authorization: Bearer" header value.
func ParseAuth(authHeader string, secret string) (Claims, error) {
	tokenStr := strings.TrimSpace(authHeader)
	if tokenStr == "" {
		return Claims{}, errors.New("missing authorization")
	}

	if strings.HasPrefix(strings.ToLower(tokenStr), "bearer ") {
		tokenStr = strings.TrimSpace(tokenStr[7:])
	}
	if tokenStr == "" {
		return Claims{}, errors.New("missing token")
	}

	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, err
	}
	if !tok.Valid {
		return Claims{}, errors.New("invalid token")
	}

	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}
	return FromMap(mc)
}

// FromMap reads Claims out of decoded token claims.
func FromMap(mc jwt.MapClaims) (Claims, error) {
	var c Claims
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, errors.New("sub missing in claims")
	}
	c.Subject = sub
	c.Role, _ = mc["role"].(string)
	if f, ok := mc["tg"].(float64); ok {
		c.TelegramID = int64(f)
	}
	return c, nil
}
