// app/echoServer/jwtx/user.go
package jwtx

import (
	"errors"

	jwtutil "tripbot/util/jwt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ContextKey is where echo-jwt stores the parsed token.
const ContextKey = "user"

func ClaimsFromContext(c echo.Context) (jwtutil.Claims, error) {
	tok, ok := c.Get(ContextKey).(*jwt.Token)
	if !ok || tok == nil {
		return jwtutil.Claims{}, errors.New("no jwt token in context")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return jwtutil.Claims{}, errors.New("invalid jwt claims")
	}
	return jwtutil.FromMap(claims)
}

func TelegramIDFromContext(c echo.Context) (int64, error) {
	claims, err := ClaimsFromContext(c)
	if err != nil {
		return 0, err
	}
	if claims.Role != jwtutil.RoleUser || claims.TelegramID == 0 {
		return 0, errors.New("tg missing in claims")
	}
	return claims.TelegramID, nil
}
