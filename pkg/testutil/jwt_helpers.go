package testutil

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"frameworks/herald/pkg/auth"
)

// JWTTestHelper provides utilities for JWT testing
type JWTTestHelper struct {
	Secret []byte
}

// NewJWTTestHelper creates a new JWT test helper with a default test secret
func NewJWTTestHelper() *JWTTestHelper {
	return &JWTTestHelper{
		Secret: []byte("test-secret-for-unit-tests"),
	}
}

// NewJWTTestHelperWithSecret creates a new JWT test helper with a custom secret
func NewJWTTestHelperWithSecret(secret []byte) *JWTTestHelper {
	return &JWTTestHelper{
		Secret: secret,
	}
}

// GenerateValidJWT generates a valid JWT token for testing
func (h *JWTTestHelper) GenerateValidJWT(userID, email, role string) (string, error) {
	return auth.GenerateJWT(userID, email, role, h.Secret)
}

// GenerateExpiredJWT generates an expired JWT token for testing
func (h *JWTTestHelper) GenerateExpiredJWT(userID, email, role string) (string, error) {
	claims := &auth.Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.Secret)
}

// TestUser represents a test user for JWT generation
type TestUser struct {
	UserID string
	Email  string
	Role   string
}

var (
	AdminTestUser    = TestUser{UserID: "admin-1", Email: "admin@example.com", Role: "admin"}
	ReviewerTestUser = TestUser{UserID: "reviewer-1", Email: "reviewer@example.com", Role: "reviewer"}
	ClientTestUser   = TestUser{UserID: "client-1", Email: "client1@example.com", Role: "client"}
	OtherClientUser  = TestUser{UserID: "client-2", Email: "client2@example.com", Role: "client"}
)

// GenerateJWT generates a JWT for the test user
func (u TestUser) GenerateJWT(helper *JWTTestHelper) (string, error) {
	return helper.GenerateValidJWT(u.UserID, u.Email, u.Role)
}

// Authorize sets a bearer token for u on req. It panics when signing
// fails, which only happens with a broken secret.
func (u TestUser) Authorize(helper *JWTTestHelper, req *http.Request) {
	token, err := u.GenerateJWT(helper)
	if err != nil {
		panic(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
