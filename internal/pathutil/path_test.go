package pathutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCollapsesSlashes(t *testing.T) {
	require.Equal(t, "/a/b/c.txt", Normalize("/a/b/", "c.txt"))
	require.Equal(t, "/a/b/c.txt", Normalize("/a/b", "/c.txt"))
	require.Equal(t, "/a/b/c.txt", Normalize("/a//b//", "//c.txt"))
}

func TestParentPathAndFilename(t *testing.T) {
	cases := []struct {
		path   string
		parent string
		name   string
	}{
		{"/a.txt", "/", "a.txt"},
		{"/a/b.txt", "/a/", "b.txt"},
		{"/a/b/c.txt", "/a/b/", "c.txt"},
		{"/a/", "/", "a/"},
		{"/a/b/", "/a/", "b/"},
	}

	for _, c := range cases {
		parent, ok := ParentPath(c.path)
		require.True(t, ok, c.path)
		require.Equal(t, c.parent, parent, c.path)

		name, ok := Filename(c.path)
		require.True(t, ok, c.path)
		require.Equal(t, c.name, name, c.path)
	}
}

func TestRootHasNoParentOrFilename(t *testing.T) {
	_, ok := ParentPath(Root)
	require.False(t, ok)

	_, ok = Filename(Root)
	require.False(t, ok)
}

func TestNormalizeParentPath(t *testing.T) {
	require.Equal(t, "/a/b/", NormalizeParentPath("/a/b"))
	require.Equal(t, "/a/b/", NormalizeParentPath("/a/b/"))
	require.Equal(t, "/", NormalizeParentPath(""))
}

func TestMarshallRoundTrips(t *testing.T) {
	m := Marshall("fs1", "/a/b.txt")
	require.Equal(t, "fs1:/a/b.txt", m)

	fs, path, ok := Unmarshall(m)
	require.True(t, ok)
	require.Equal(t, "fs1", fs)
	require.Equal(t, "/a/b.txt", path)
}

func TestParentsBottomUp(t *testing.T) {
	dirs := ParentsBottomUp("/a/b/c.txt", func(dirPath string) string { return dirPath })
	require.Equal(t, []string{"/a/b/", "/a/"}, dirs)
}

func TestParentsBottomUpTopLevel(t *testing.T) {
	dirs := ParentsBottomUp("/a.txt", func(dirPath string) string { return dirPath })
	require.Empty(t, dirs)
}

func TestRandomFileIDShardPrefix(t *testing.T) {
	id := RandomFileID()
	require.Len(t, ShardPrefix(id), ShardPrefixLen)

	other := RandomFileID()
	require.NotEqual(t, id, other)
}

func TestIsDirectoryPath(t *testing.T) {
	require.True(t, IsDirectoryPath("/"))
	require.True(t, IsDirectoryPath("/a/"))
	require.False(t, IsDirectoryPath("/a.txt"))
}
