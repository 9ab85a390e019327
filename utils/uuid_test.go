package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuestID(t *testing.T) {
	id := GuestID(" +15550001 ")

	require.Equal(t, id, GuestID("+15550001"))
	require.NotEqual(t, id, GuestID("+15550002"))
	require.NotContains(t, id, "15550001")
	require.True(t, IsGuestID(id))
	require.False(t, IsGuestID(GenerateID()))
}
