package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/exp/rand"
)

// Manager issues and checks the sandbox's HS256 access tokens.
type Manager struct {
	signingKey string
}

func NewManager(signingKey string) (*Manager, error) {
	if signingKey == "" {
		return nil, errors.New("empty signing key")
	}

	return &Manager{signingKey: signingKey}, nil
}

// NewJWT signs a token carrying user_id and role. sub repeats the id as a
// string for clients that only read the standard claim.
func (m *Manager) NewJWT(userID int64, role string, ttl time.Duration) (string, error) {
	issued := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"sub":     strconv.FormatInt(userID, 10),
		"iat":     issued.Unix(),
		"exp":     issued.Add(ttl).Unix(),
	})

	return token.SignedString([]byte(m.signingKey))
}

// Parse verifies accessToken and returns its user id and role.
func (m *Manager) Parse(accessToken string) (int64, string, error) {
	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (i interface{}, err error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.signingKey), nil
	})
	if err != nil {
		return 0, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errors.New("unexpected claims type")
	}
	id, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", errors.New("token has no user_id")
	}
	role, _ := claims["role"].(string)
	return int64(id), role, nil
}

// SigningKey exposes the HMAC key for middleware that verifies tokens
// with a different jwt package.
func (m *Manager) SigningKey() []byte { return []byte(m.signingKey) }

// RandomHex returns n random bytes hex-encoded. It is not meant for
// secrets; the sandbox uses it for transaction ids.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)

	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", b), nil
}

func init() {
	rand.Seed(uint64(time.Now().UnixNano()))
}
