package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapaeventos/authkit/internal/storage/file"
)

func TestRoundTripAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	st, err := file.New(path)
	require.NoError(t, err)
	st.Set("a", "1")
	st.Set("b", "2")
	st.Remove("b")

	// Reapertura: el estado sobrevive al proceso.
	st2, err := file.New(path)
	require.NoError(t, err)
	v, ok := st2.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	_, ok = st2.Get("b")
	assert.False(t, ok)
}

func TestClearPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	st, err := file.New(path)
	require.NoError(t, err)
	st.Set("a", "1")
	st.Clear()

	st2, err := file.New(path)
	require.NoError(t, err)
	assert.Empty(t, st2.Keys())
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	st, err := file.New(path)
	require.NoError(t, err)
	st.Set("a", "1")

	require.NoError(t, os.WriteFile(path, []byte("{{{no-json"), 0600))
	st2, err := file.New(path)
	require.NoError(t, err)
	_, ok := st2.Get("a")
	assert.False(t, ok)
}
