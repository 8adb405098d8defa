package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/zhouzirui/shame-alarm/backend/internal/config"
	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/identity"
)

func headerRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	if userID != "" {
		req.Header.Set(identity.HeaderUserID, userID)
	}
	return req
}

func rejectingTokens() identity.Resolver {
	return identity.NewSupabaseResolverWithFetcher(func(context.Context, string) (*types.UserResponse, error) {
		return nil, errors.New("invalid JWT")
	}, nil)
}

func TestBuildResolverWithoutSupabaseAllowsHeadersAndGuest(t *testing.T) {
	resolver := BuildResolver(config.AuthConfig{}, nil, nil)

	id, err := resolver.Resolve(context.Background(), headerRequest("alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)

	id, err = resolver.Resolve(context.Background(), headerRequest(""))
	require.NoError(t, err)
	assert.Equal(t, focus.GuestUserID, id.UserID)
}

func TestBuildResolverWithSupabaseIgnoresHeaders(t *testing.T) {
	resolver := BuildResolver(config.AuthConfig{}, rejectingTokens(), nil)

	_, err := resolver.Resolve(context.Background(), headerRequest("victim"))
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	_, err = resolver.Resolve(context.Background(), headerRequest(""))
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestBuildResolverHeaderOptIn(t *testing.T) {
	resolver := BuildResolver(config.AuthConfig{AllowHeaderIdentity: true}, rejectingTokens(), nil)

	id, err := resolver.Resolve(context.Background(), headerRequest("dev"))
	require.NoError(t, err)
	assert.Equal(t, "dev", id.UserID)

	// 没有访客回退
	_, err = resolver.Resolve(context.Background(), headerRequest(""))
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestNewResolverWithoutClient(t *testing.T) {
	resolver, err := NewResolver(config.AuthConfig{}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, identity.HeaderResolver{}, resolver)
}
