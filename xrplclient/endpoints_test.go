package xrplclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEndpointSetFiltersAndDedupes(t *testing.T) {
	require := require.New(t)

	set, err := newEndpointSet([]string{
		" wss://a.example ",
		"wss://a.example",
		"not-a-ws-url",
		"ws://b.example",
		"",
	})
	require.NoError(err)
	require.Equal(2, set.len())
	require.Equal("wss://a.example", set.current())
}

func TestNewEndpointSetRejectsEmpty(t *testing.T) {
	_, err := newEndpointSet([]string{"", "  ", "http://not-ws.example"})
	require.Error(t, err)

	var cerr *ClientError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, KindConfigError, cerr.Kind)
}

func TestEndpointSetAdvanceWraps(t *testing.T) {
	require := require.New(t)

	set, err := newEndpointSet([]string{"wss://a.example", "wss://b.example"})
	require.NoError(err)

	require.Equal("wss://a.example", set.current())
	wrapped := set.advance()
	require.False(wrapped)
	require.Equal("wss://b.example", set.current())

	wrapped = set.advance()
	require.True(wrapped)
	require.Equal("wss://a.example", set.current())
}
