package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPersistence struct {
	*MemoryPersistence
}

func (failingPersistence) Save(key, value string) error { return errors.New("disk full") }

func TestContext_SetUsername(t *testing.T) {
	t.Run("trims and notifies", func(t *testing.T) {
		sess, err := NewContext(NewMemoryPersistence())
		require.NoError(t, err)

		var notified []string
		sess.Subscribe(func(name string) { notified = append(notified, name) })

		require.NoError(t, sess.SetUsername("  Ana  "))

		assert.Equal(t, "Ana", sess.Username())
		assert.True(t, sess.HasUsername())
		assert.Equal(t, []string{"Ana"}, notified)
	})

	t.Run("empty", func(t *testing.T) {
		sess, err := NewContext(nil)
		require.NoError(t, err)

		assert.ErrorIs(t, sess.SetUsername("   "), ErrEmptyUsername)
		assert.False(t, sess.HasUsername())
	})

	t.Run("set at most once", func(t *testing.T) {
		sess, err := NewContext(NewMemoryPersistence())
		require.NoError(t, err)
		calls := 0
		sess.Subscribe(func(string) { calls++ })

		require.NoError(t, sess.SetUsername("Ana"))
		assert.NoError(t, sess.SetUsername("Ana"))
		assert.ErrorIs(t, sess.SetUsername("Bob"), ErrUsernameAlreadySet)

		assert.Equal(t, "Ana", sess.Username())
		assert.Equal(t, 1, calls)
	})

	t.Run("persistence failure", func(t *testing.T) {
		sess, err := NewContext(failingPersistence{NewMemoryPersistence()})
		require.NoError(t, err)

		assert.Error(t, sess.SetUsername("Ana"))
		assert.Empty(t, sess.Username())
	})
}

func TestContext_RestoresUsername(t *testing.T) {
	persistence := NewMemoryPersistence()
	require.NoError(t, persistence.Save(UsernameKey, "Ana"))

	sess, err := NewContext(persistence)
	require.NoError(t, err)

	assert.Equal(t, "Ana", sess.Username())
}

func TestContext_IsMine(t *testing.T) {
	sess, err := NewContext(NewMemoryPersistence())
	require.NoError(t, err)

	assert.False(t, sess.IsMine(""), "no username means nothing is mine")

	require.NoError(t, sess.SetUsername("Ana"))
	assert.True(t, sess.IsMine("Ana"))
	assert.False(t, sess.IsMine("ana"))
	assert.False(t, sess.IsMine("Bob"))
}

func TestContext_Clear(t *testing.T) {
	persistence := NewMemoryPersistence()
	sess, err := NewContext(persistence)
	require.NoError(t, err)
	require.NoError(t, sess.SetUsername("Ana"))

	require.NoError(t, sess.Clear())

	assert.Empty(t, sess.Username())
	assert.False(t, persistence.Exists(UsernameKey))
	require.NoError(t, sess.SetUsername("Bob"))
}
