package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/betdesk/internal/common"
)

const testSecret = "test-secret-test-secret-test-secret!"

func TestTokenService_IssueVerify(t *testing.T) {
	svc := NewTokenService(testSecret, "betdesk", 0)
	userID := uuid.New()

	token, expiresAt, err := svc.Issue(userID, RoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, Principal{UserID: userID, Role: RoleAdmin}, claims.Principal())
}

func TestTokenService_RejectsExpired(t *testing.T) {
	issued := time.Now().Add(-25 * time.Hour)
	issuer := NewTokenService(testSecret, "betdesk", 0).WithClock(func() time.Time { return issued })
	token, _, err := issuer.Issue(uuid.New(), RoleUser)
	require.NoError(t, err)

	_, err = NewTokenService(testSecret, "betdesk", 0).Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
	assert.Equal(t, common.KindAuth, common.KindOf(err))
}

func TestTokenService_RejectsTampered(t *testing.T) {
	svc := NewTokenService(testSecret, "betdesk", 0)
	token, _, err := svc.Issue(uuid.New(), RoleUser)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenService("another-secret-another-secret-xxxxx", "betdesk", 0)
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("modified payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			UserID: uuid.New(),
			Role:   RoleSuperadmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "betdesk",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		forgedString, err := forged.SigningString()
		require.NoError(t, err)
		// подпись от исходного токена к чужому payload
		_, err = svc.Verify(forgedString + "." + parts[2])
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := svc.Verify("not-a-jwt")
		assert.ErrorIs(t, err, common.ErrInvalidToken)
		_, err = svc.Verify("")
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("alg none", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			UserID: uuid.New(),
			Role:   RoleSuperadmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "betdesk",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Verify(s)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenService(testSecret, "someone-else", 0)
		foreign, _, err := other.Issue(uuid.New(), RoleUser)
		require.NoError(t, err)
		_, err = svc.Verify(foreign)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})
}

func TestTokenService_IssueRejectsUnknownRole(t *testing.T) {
	_, _, err := NewTokenService(testSecret, "betdesk", 0).Issue(uuid.New(), Role("root"))
	assert.Error(t, err)
}
