package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"carhut/models"
)

// JWT 是access token攜帶的claims
// Subject 為使用者ID，Role 決定 RequireRoles 中介層的授權結果
type JWT struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// SignJWT 簽發一個新的access token
func SignJWT(config AuthConfig, userID uuid.UUID, username string, role models.Role) (string, error) {
	const op = "SignJWT"
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, JWT{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(config.ExpireDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    config.Issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			Audience:  []string{config.Audience},
		},
	})
	tokenString, err := token.SignedString([]byte(config.Secret))
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err)
	}
	return tokenString, nil
}

// ParseAndValidateJWT 解析並驗證access token
// 簽章、有效期、簽發者和受眾任一不符都視為無效
func ParseAndValidateJWT(tokenString string, config AuthConfig) (*JWT, error) {
	const op = "ParseAndValidateJWT"
	token, err := jwt.ParseWithClaims(
		tokenString,
		&JWT{},
		func(token *jwt.Token) (interface{}, error) {
			return []byte(config.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithAudience(config.Audience),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("[%s] token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("[%s] token claims are invalid", op)
	}
	return claims, nil
}

// UserID 回傳claims中的使用者ID
func (j *JWT) UserID() (uuid.UUID, error) {
	const op = "JWT.UserID"
	id, err := uuid.Parse(j.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to parse subject, err=%w", op, err)
	}
	return id, nil
}
