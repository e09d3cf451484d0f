package quota

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentitySet_AddRange(t *testing.T) {
	s := NewIdentitySet()
	require.NoError(t, s.AddRange("1000-1003"))
	ids := s.IDs()
	require.Len(t, ids, 4)
}

func TestIdentitySet_AddRange_RejectsInverted(t *testing.T) {
	s := NewIdentitySet()
	require.Error(t, s.AddRange("10-5"))
}

func TestIdentitySet_AddIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("100 200\n300\n"), 0o644))

	s := NewIdentitySet()
	require.NoError(t, s.AddIDFile(path))
	ids := s.IDs()
	require.Len(t, ids, 3)
}
