package docker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteWorkspaceCreatesFiles(t *testing.T) {
	root := t.TempDir()

	workspace, err := writeWorkspace(root, map[string]string{
		"main.py":   "print(input())",
		"input.txt": "hello\n",
	})
	require.NoError(t, err)
	defer os.RemoveAll(workspace)

	content, err := os.ReadFile(filepath.Join(workspace, "main.py"))
	require.NoError(t, err)
	require.Equal(t, "print(input())", string(content))

	content, err = os.ReadFile(filepath.Join(workspace, "input.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(content))
}

func TestWriteWorkspaceRejectsEscapes(t *testing.T) {
	root := t.TempDir()

	_, err := writeWorkspace(root, map[string]string{"../evil.sh": "rm -rf /"})
	require.Error(t, err)

	_, err = writeWorkspace(root, map[string]string{"/etc/passwd": "x"})
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries)
}
