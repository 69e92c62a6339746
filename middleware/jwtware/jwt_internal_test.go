package jwtware

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig(Config{
		TokenValidator: TokenValidatorFunc(func(string) (Claims, error) { return nil, nil }),
	})

	require.Equal(t, "header:Authorization", cfg.TokenLookup)
	require.Equal(t, "Bearer", cfg.AuthScheme)
	require.Equal(t, "user", cfg.ContextKey)
	require.NotNil(t, cfg.ContextEnricher)
	require.NotNil(t, cfg.ContextCleaner)
	require.Len(t, cfg.getExtractors(), 1)
}

func TestGetExtractorsSkipsUnknownSources(t *testing.T) {
	extractors := GetExtractors("header:Authorization, query:token ,param:id,cookie:jwt,broken")
	require.Len(t, extractors, 3)
}

func TestMatchSegments(t *testing.T) {
	require.True(t, matchSegments(splitPath("/a/*/c"), splitPath("/a/b/c/")))
	require.False(t, matchSegments(splitPath("/a/*/c"), splitPath("/a/b")))
	require.False(t, matchSegments(splitPath("/a/*/c"), splitPath("/a/b/d")))
	require.Equal(t, []string{"users", "me"}, splitPath("/users/me/"))
}
