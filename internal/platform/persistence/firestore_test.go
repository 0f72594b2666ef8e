package persistence

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	assert.Equal(t, "alice|bob", PairKey("alice", "bob"))
	assert.Equal(t, "alice|bob", PairKey("bob", "alice"), "key must be direction-independent")
	assert.Equal(t, "alice|alice", PairKey("alice", "alice"))
	assert.NotEqual(t, PairKey("a", "b"), PairKey("a", "c"))
}

func TestConstructorsRejectBadInput(t *testing.T) {
	logger := zerolog.Nop()

	_, err := NewFirestoreMessageStore(nil, "messages", logger)
	assert.Error(t, err)

	_, err = NewFirestoreUserStore(nil, "users", logger)
	assert.Error(t, err)
}
