package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRejectsEscape(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = fs.ReadFile("../../etc/passwd")
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile("/home/agent_1/notes.txt", []byte("hello")))
	content, size, err := fs.ReadFile("/home/agent_1/notes.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", content)
	require.Equal(t, int64(5), size)
}

func TestCreateHomeLayout(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.CreateHome("agent_1"))

	entries, err := fs.Ls("/home/agent_1")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	require.True(t, names["Desktop"])
	require.True(t, names["Documents"])
	require.True(t, names[".config"])
}

func TestLsOrdersDirsBeforeFiles(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/a_dir", true))
	require.NoError(t, fs.WriteFile("/b_file.txt", []byte("x")))

	entries, err := fs.Ls("/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].IsDir)
	require.False(t, entries[1].IsDir)
}

func TestSharedMountRejectsBadName(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	err = fs.CreateSharedMount("../evil")
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestSharedMountRoundTrip(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.CreateHome("agent_1"))
	require.NoError(t, fs.CreateSharedMount("team"))
	require.NoError(t, fs.MountShared("agent_1", "team"))
	require.NoError(t, fs.UnmountShared("agent_1", "team"))
}
