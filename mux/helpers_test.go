package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTemplate(t *testing.T) {
	parts, err := splitTemplate("/a/{re:x/y}/b/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "{re:x/y}", "b"}, parts)

	_, err = splitTemplate("/a/{b")
	assert.ErrorIs(t, err, errUnbalancedBraces)

	_, err = splitTemplate("/a}/{b")
	assert.ErrorIs(t, err, errUnbalancedBraces)
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "plain", unescape("plain"))
	assert.Equal(t, "a b", unescape("a%20b"))
	assert.Equal(t, "bad%zz", unescape("bad%zz"))
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		prefix, tpl, want string
	}{
		{"/api", "/users", "/api/users"},
		{"/api", "users", "/api/users"},
		{"/api", "/", "/api"},
		{"/api", "", "/api"},
		{"", "/", "/"},
		{"", "/x", "/x"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"|"+tt.tpl, func(t *testing.T) {
			assert.Equal(t, tt.want, joinPath(tt.prefix, tt.tpl))
		})
	}
}

func TestMapFromPairs(t *testing.T) {
	m, err := mapFromPairs("a", "1", "b", "2")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, m)

	_, err = mapFromPairs("a")
	assert.Error(t, err)
}
