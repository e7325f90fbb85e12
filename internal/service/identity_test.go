package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

func TestFetchMemberData(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/room/access", r.URL.Path)
		require.Equal(t, "Bearer api-token", r.Header.Get("Authorization"))

		q := r.URL.Query()
		require.Equal(t, "uuid-1", q.Get("userIdentifier"))
		require.Equal(t, []string{"body-1", "hair-2"}, q["characterTextureIds"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"userUuid": "uuid-1",
			"email": "alice@example.com",
			"tags": ["admin"],
			"characterTexturesValid": true,
			"companionTextureValid": true,
			"pendingMessages": [{"type": "message", "message": "welcome back"}]
		}`))
	}))
	defer upstream.Close()

	c := NewIdentityClient(IdentityConfig{BaseURL: upstream.URL, APIToken: "api-token"})

	member, err := c.FetchMemberData(context.Background(), "uuid-1",
		"https://play.test/@/w1/lobby", "10.0.0.1",
		[]string{"body-1", "hair-2"}, "", "")
	require.NoError(t, err)
	require.Equal(t, "uuid-1", member.UserUUID)
	require.Equal(t, []string{"admin"}, member.Tags)
	require.True(t, member.CharacterTexturesValid)
	require.Len(t, member.PendingMessages, 1)
}

func TestFetchMemberDataRejectsEmptyUUID(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	c := NewIdentityClient(IdentityConfig{BaseURL: upstream.URL})
	_, err := c.FetchMemberData(context.Background(), "uuid-1", "uri", "ip", nil, "", "")
	require.ErrorIs(t, err, merr.ErrIdentityBadResponse)
}

func TestIdentityRetriesServerErrors(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tags":["ok"]}`))
	}))
	defer upstream.Close()

	c := NewIdentityClient(IdentityConfig{BaseURL: upstream.URL, MaxAttempts: 3})
	tags, err := c.SearchTags(context.Background(), "uri", "o")
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, tags)
	require.Equal(t, 3, calls)
}

func TestIdentityDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	c := NewIdentityClient(IdentityConfig{BaseURL: upstream.URL, MaxAttempts: 5})
	_, err := c.GetMember(context.Background(), "uuid-1")
	require.ErrorIs(t, err, merr.ErrIdentityBadResponse)
	require.Equal(t, 1, calls, "4xx responses must not be retried")
}
