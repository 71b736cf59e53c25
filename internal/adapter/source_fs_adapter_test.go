package adapter

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/schemata/internal/model"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalSourceFSAdapter_Walk(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "main.go"), "package main\n")
	nested := filepath.Join(root, "nested", "child.go")
	writeTestFile(t, nested, "package nested\n")

	tests := []struct {
		name      string
		recursive bool
		wantChild bool
	}{
		{"non recursive skips nested files", false, false},
		{"recursive visits nested files", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewLocalSourceFSAdapter()

			var visited []string
			err := adapter.Walk(m.Path(root), tt.recursive, func(path string, _ os.FileInfo, err error) error {
				if err != nil {
					return err
				}

				visited = append(visited, path)

				return nil
			})
			require.NoError(t, err)

			assert.Contains(t, visited, filepath.Join(root, "main.go"))
			if tt.wantChild {
				assert.Contains(t, visited, nested)
			} else {
				assert.NotContains(t, visited, nested)
			}
		})
	}
}

func TestLocalSourceFSAdapter_Get(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "a.go"), "package a\n")
	writeTestFile(t, filepath.Join(root, "a_test.go"), "package a\n")
	writeTestFile(t, filepath.Join(root, "zz_gen.go"), "package a\n")
	writeTestFile(t, filepath.Join(root, "README.md"), "# readme\n")
	writeTestFile(t, filepath.Join(root, "sub", "b.go"), "package sub\n")
	writeTestFile(t, filepath.Join(root, "testdata", "c.go"), "package testdata\n")
	writeTestFile(t, filepath.Join(root, ".hidden", "d.go"), "package hidden\n")

	adapter := NewLocalSourceFSAdapter()

	tests := []struct {
		name    string
		roots   []m.Path
		exclude []string
		want    []m.Path
	}{
		{
			name:  "directory is not recursive",
			roots: []m.Path{m.Path(root)},
			want:  []m.Path{m.Path(filepath.Join(root, "a.go")), m.Path(filepath.Join(root, "zz_gen.go"))},
		},
		{
			name:  "recursive pattern skips testdata and hidden dirs",
			roots: []m.Path{m.Path(root + "/...")},
			want: []m.Path{
				m.Path(filepath.Join(root, "a.go")),
				m.Path(filepath.Join(root, "sub", "b.go")),
				m.Path(filepath.Join(root, "zz_gen.go")),
			},
		},
		{
			name:    "exclude patterns filter files",
			roots:   []m.Path{m.Path(root + "/...")},
			exclude: []string{`_gen\.go$`, `^b\.go$`},
			want:    []m.Path{m.Path(filepath.Join(root, "a.go"))},
		},
		{
			name:  "files are deduplicated",
			roots: []m.Path{m.Path(filepath.Join(root, "a.go")), m.Path(filepath.Join(root, "a.go")), m.Path(filepath.Join(root, "a_test.go"))},
			want:  []m.Path{m.Path(filepath.Join(root, "a.go"))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := adapter.Get(tt.roots, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("invalid exclude pattern", func(t *testing.T) {
		_, err := adapter.Get([]m.Path{m.Path(root)}, []string{"("})
		require.Error(t, err)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := adapter.Get([]m.Path{m.Path(filepath.Join(root, "missing"))}, nil)
		require.Error(t, err)
	})
}

func TestParseRootPath(t *testing.T) {
	tests := []struct {
		in            string
		wantPath      string
		wantRecursive bool
	}{
		{"./...", ".", true},
		{"...", ".", true},
		{"./pkg/...", "./pkg", true},
		{"./pkg", "./pkg", false},
		{"main.go", "main.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			path, recursive := parseRootPath(tt.in)
			assert.Equal(t, tt.wantPath, path)
			assert.Equal(t, tt.wantRecursive, recursive)
		})
	}
}

func TestLocalSourceFSAdapter_ReadAndHashFile(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	path := filepath.Join(t.TempDir(), "main.go")
	content := "package main\n\nfunc main() {}\n"
	writeTestFile(t, path, content)

	got, err := adapter.ReadFile(m.Path(path))
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	hash, err := adapter.HashFile(m.Path(path))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte(content))), hash)

	_, err = adapter.HashFile(m.Path(filepath.Join(t.TempDir(), "missing.go")))
	require.Error(t, err)
}

func TestLocalSourceFSAdapter_TestFiles(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "calc.go"), "package calc\n")
	writeTestFile(t, filepath.Join(root, "calc_test.go"), "package calc\n")
	writeTestFile(t, filepath.Join(root, "other_test.go"), "package calc\n")
	writeTestFile(t, filepath.Join(root, "lonely.go"), "package calc\n")

	tests, err := adapter.FindTestFiles(m.Path(root))
	require.NoError(t, err)
	assert.Equal(t, []m.Path{
		m.Path(filepath.Join(root, "calc_test.go")),
		m.Path(filepath.Join(root, "other_test.go")),
	}, tests)
}

func TestLocalSourceFSAdapter_FindProjectRoot(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	root, err := adapter.FindProjectRoot(m.Path(filepath.Join("..", "..", "examples", "robobar", "greeting.go")))
	require.NoError(t, err)
	assert.Equal(t, m.Path(filepath.Join("..", "..", "examples", "robobar")), root)

	_, err = adapter.FindProjectRoot(m.Path(filepath.Join(string(os.PathSeparator), "nowhere", "main.go")))
	require.ErrorIs(t, err, ErrNoModule)
}

func TestLocalSourceFSAdapter_Workspace(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "go.mod"), "module example.com/x\n")
	writeTestFile(t, filepath.Join(src, "pkg", "a.go"), "package pkg\n")
	writeTestFile(t, filepath.Join(src, ".git", "HEAD"), "ref: main\n")

	dst, err := adapter.CreateTempDir("schemata-test-*")
	require.NoError(t, err)

	require.NoError(t, adapter.CopyDir(m.Path(src), dst))
	assert.FileExists(t, filepath.Join(string(dst), "go.mod"))
	assert.FileExists(t, filepath.Join(string(dst), "pkg", "a.go"))
	assert.NoDirExists(t, filepath.Join(string(dst), ".git"))

	target := adapter.JoinPath(string(dst), "pkg", "nested", "b.go")
	require.NoError(t, adapter.WriteFile(target, []byte("package nested\n"), 0o600))
	assert.FileExists(t, string(target))

	rel, err := adapter.RelPath(dst, target)
	require.NoError(t, err)
	assert.Equal(t, m.Path(filepath.Join("pkg", "nested", "b.go")), rel)

	require.NoError(t, adapter.RemoveAll(dst))
	assert.NoDirExists(t, string(dst))
}
