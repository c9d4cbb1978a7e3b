package output

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return New(fs, "/out", "s1"), fs
}

func TestDirIsAbsolute(t *testing.T) {
	m := New(afero.NewMemMapFs(), "relative/out", "s1")
	assert.True(t, filepath.IsAbs(m.Dir()))
	assert.True(t, strings.HasSuffix(m.Dir(), filepath.Join("relative", "out")))
}

func TestEnsureDir(t *testing.T) {
	m, fs := newTestManager(t)

	require.NoError(t, m.EnsureDir("failures/click-1"))

	ok, err := afero.DirExists(fs, "/out/failures/click-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteFileReturnsAbsolutePath(t *testing.T) {
	m, fs := newTestManager(t)

	p, err := m.WriteFile("reports/r.json", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "/out/reports/r.json", filepath.ToSlash(p))

	data, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestRejectsEscapingPaths(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.WriteFile("../etc/passwd", []byte("x"))
	assert.Error(t, err)

	assert.Error(t, m.EnsureDir("/abs"))
}

func TestGenerateFilename(t *testing.T) {
	m, _ := newTestManager(t)

	a := m.GenerateFilename("report", ".json")
	b := m.GenerateFilename("report", "json")

	assert.True(t, strings.HasPrefix(a, "report-s1-"))
	assert.True(t, strings.HasSuffix(a, ".json"))
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "names sort by creation")

	assert.False(t, strings.Contains(m.GenerateFilename("raw", ""), "."))
}

func TestList(t *testing.T) {
	m, _ := newTestManager(t)

	artifacts, err := m.List("")
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	_, err = m.WriteFile("screenshots/a.png", []byte("\x89PNG\r\n\x1a\nrest"))
	require.NoError(t, err)
	_, err = m.WriteFile("failures/click-1/page.json", []byte(`{"url":"x"}`))
	require.NoError(t, err)
	_, err = m.WriteFile("report.json", []byte(`{}`))
	require.NoError(t, err)

	tests := []struct {
		pattern string
		want    []string
	}{
		{pattern: "", want: []string{"failures/click-1/page.json", "report.json", "screenshots/a.png"}},
		{pattern: "**/*.json", want: []string{"failures/click-1/page.json", "report.json"}},
		{pattern: "screenshots/*", want: []string{"screenshots/a.png"}},
		{pattern: "missing/**", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			artifacts, err := m.List(tt.pattern)
			require.NoError(t, err)
			got := make([]string, 0, len(artifacts))
			for _, a := range artifacts {
				got = append(got, a.Path)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	artifacts, err = m.List("screenshots/*.png")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "image/png", artifacts[0].MIME)
	assert.Equal(t, int64(12), artifacts[0].Size)
}

func TestListInvalidPattern(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.List("[")
	assert.Error(t, err)
}
