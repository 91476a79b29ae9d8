package service

import (
	"testing"
	"time"

	"github.com/stamp-next/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorTokenRoundTrip(t *testing.T) {
	staff := Actor{ID: 7, Type: constants.ActorTypeStaff, MerchantID: 3}
	token, expiresAt, err := SignActorToken("auth-secret", "identity", staff, time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	actor, err := ParseActorToken("auth-secret", "identity", token)
	require.NoError(t, err)
	assert.Equal(t, staff, actor)

	_, err = ParseActorToken("other-secret", "identity", token)
	assert.ErrorIs(t, err, ErrActorTokenInvalid)
	_, err = ParseActorToken("auth-secret", "someone-else", token)
	assert.ErrorIs(t, err, ErrActorTokenInvalid)

	actor, err = ParseActorToken("auth-secret", "", token)
	require.NoError(t, err)
	assert.True(t, actor.IsStaff())
}

func TestParseActorTokenRejectsIncompleteActors(t *testing.T) {
	cases := []Actor{
		{ID: 7, Type: constants.ActorTypeStaff},
		{ID: 0, Type: constants.ActorTypeCustomer},
		{ID: 5, Type: "admin"},
	}
	for _, actor := range cases {
		token, _, err := SignActorToken("auth-secret", "", actor, time.Hour)
		require.NoError(t, err)
		_, err = ParseActorToken("auth-secret", "", token)
		assert.ErrorIs(t, err, ErrActorTokenInvalid, "actor %+v", actor)
	}

	expired, _, err := SignActorToken("auth-secret", "", Actor{ID: 1, Type: constants.ActorTypeCustomer}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseActorToken("auth-secret", "", expired)
	assert.ErrorIs(t, err, ErrActorTokenInvalid)

	_, _, err = SignActorToken(" ", "", Actor{ID: 1, Type: constants.ActorTypeCustomer}, time.Hour)
	assert.Error(t, err)
}
