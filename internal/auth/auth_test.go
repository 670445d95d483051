package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "password123", false},
		{"empty password", "", false},
		{"long password", "a" + string(make([]byte, 70)), false}, // bcrypt max is 72 bytes
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("HashPassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && hash == "" {
				t.Error("HashPassword() returned empty hash")
			}
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "testpassword123"
	hash, err := HashPassword(password)
	require.NoError(t, err)

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
	}{
		{"correct password", hash, password, true},
		{"wrong password", hash, "wrongpassword", false},
		{"empty password", hash, "", false},
		{"invalid hash", "invalidhash", password, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPassword(tt.hash, tt.password))
		})
	}
}

func TestTokens_SignAndParse(t *testing.T) {
	tokens := NewTokens("test-secret-key", 15*time.Minute, 7*24*time.Hour)

	for _, kind := range []Kind{KindAccess, KindRefresh} {
		t.Run(string(kind), func(t *testing.T) {
			signed, exp, err := tokens.Sign(42, kind)
			require.NoError(t, err)
			require.NotEmpty(t, signed)

			claims, err := tokens.ParseKind(signed, kind)
			require.NoError(t, err)
			assert.Equal(t, uint(42), claims.UserID)
			assert.Equal(t, "42", claims.Subject)
			assert.Equal(t, kind, claims.Kind)
			assert.NotEmpty(t, claims.ID)
			assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestTokens_SignUnique(t *testing.T) {
	tokens := NewTokens("s", time.Minute, time.Hour)
	a, _, err := tokens.Sign(1, KindRefresh)
	require.NoError(t, err)
	b, _, err := tokens.Sign(1, KindRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "tokens minted in the same second must differ")
}

func TestTokens_ParseFailures(t *testing.T) {
	tokens := NewTokens("test-secret-key", 15*time.Minute, time.Hour)
	signed, _, err := tokens.Sign(7, KindAccess)
	require.NoError(t, err)

	other := NewTokens("wrong-secret", 15*time.Minute, time.Hour)

	tests := []struct {
		name  string
		parse func() error
		want  error
	}{
		{"wrong secret", func() error { _, err := other.Parse(signed); return err }, ErrTokenInvalid},
		{"malformed", func() error { _, err := tokens.Parse("invalid.token.here"); return err }, ErrTokenInvalid},
		{"empty", func() error { _, err := tokens.Parse(""); return err }, ErrTokenInvalid},
		{"wrong kind", func() error { _, err := tokens.ParseKind(signed, KindRefresh); return err }, ErrWrongTokenKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.parse(), tt.want)
		})
	}
}

func TestTokens_Expired(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute, time.Hour)
	signed, _, err := tokens.Sign(1, KindAccess)
	require.NoError(t, err)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	claims, err := tokens.Parse(signed)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokens_UnknownKindRejected(t *testing.T) {
	secret := []byte("test-secret")
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": 1,
		"typ": "session",
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := raw.SignedString(secret)
	require.NoError(t, err)

	tokens := NewTokens(string(secret), time.Minute, time.Hour)
	_, err = tokens.Parse(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, _, err = tokens.Sign(1, Kind("session"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestTokens_MissingKindRejected(t *testing.T) {
	secret := []byte("test-secret")
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": 1,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := raw.SignedString(secret)
	require.NoError(t, err)

	_, err = NewTokens(string(secret), time.Minute, time.Hour).Parse(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseLifetime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"10h", 10 * time.Hour, false},
		{"15m", 15 * time.Minute, false},
		{" 2d ", 48 * time.Hour, false},
		{"30s", 0, true},
		{"d", 0, true},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLifetime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc"))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

type stubValidator map[string]uint

func (s stubValidator) ValidateAccess(token string) (uint, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return 0, errors.New("nope")
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(stubValidator{"good": 9}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c)})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer bad", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
