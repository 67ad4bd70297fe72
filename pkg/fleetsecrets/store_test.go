package fleetsecrets

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "fleet-nlp-core-test")
	require.NoError(t, err)

	want := Credentials{AuthMode: "bearer", Bearer: "tok-123"}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_RotatesBackupOnOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "fleet-nlp-core-test")
	require.NoError(t, err)

	require.NoError(t, s.Save(Credentials{AuthMode: "cookie", Cookie: "a"}))
	require.NoError(t, s.Save(Credentials{AuthMode: "cookie", Cookie: "b"}))

	backups, err := s.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", got.Cookie)
}

func TestSave_TrimsBackupsToMax(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "fleet-nlp-core-test")
	require.NoError(t, err)

	for i := 0; i < maxBackups+5; i++ {
		require.NoError(t, s.Save(Credentials{AuthMode: "api_key", APIKey: "k"}))
	}

	backups, err := s.Backups()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), maxBackups)
}

func TestOpen_SetsDirectoryPermissions(t *testing.T) {
	dir := t.TempDir() + "/store"
	_, err := Open(dir, "fleet-nlp-core-test")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(dirPerm), info.Mode().Perm())
}
