package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"socketchat/internal/chat"
	"socketchat/internal/message"
	"socketchat/internal/user"
)

// The assembly must keep satisfying the hub's persistence contract; this
// breaks the build if either delegating method drifts.
var _ chat.Store = (*chatStore)(nil)

func TestChatStoreSatisfiesHubContract(t *testing.T) {
	store := &chatStore{
		messages: message.NewRepository(nil),
		users:    user.NewRepository(nil),
	}
	require.Implements(t, (*chat.Store)(nil), store)
}
