package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "user-1", "u@example.com", "CUSTOMER", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
	assert.Equal(t, "CUSTOMER", claims["role"])
	assert.Equal(t, "u@example.com", claims["email"])
}

func TestNewAccessToken_Rejects(t *testing.T) {
	_, err := NewAccessToken("", "user-1", "", "CUSTOMER", time.Hour)
	assert.Error(t, err)
	_, err = NewAccessToken("s3cret", "", "", "CUSTOMER", time.Hour)
	assert.Error(t, err)
}

func TestNewAccessToken_Expired(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "user-1", "", "ADMIN", -time.Minute)
	require.NoError(t, err)
	_, err = jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
