package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) *localArchive {
	t.Helper()
	archive, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)
	ls := archive.(*localArchive)
	ls.now = func() time.Time { return time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC) }
	return ls
}

func TestValidatePath_PathTraversal(t *testing.T) {
	ls := newTestArchive(t)

	tests := []struct {
		name string
		path string
	}{
		{"simple traversal", "../etc/passwd"},
		{"double traversal", "../../etc/passwd"},
		{"nested traversal", "2030/../../../etc/passwd"},
		{"windows style", "..\\..\\windows\\system32"},
		{"windows absolute", "C:\\Windows\\System32"},
		{"unix absolute", "/etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ls.validatePath(tt.path)
			assert.ErrorIs(t, err, ErrPathTraversal)
		})
	}
}

func TestValidatePath_ValidPath(t *testing.T) {
	ls := newTestArchive(t)

	result, err := ls.validatePath("2030/03/04/abc-12345678.eml")
	require.NoError(t, err)

	absBase, _ := filepath.Abs(ls.basePath)
	assert.True(t, strings.HasPrefix(result, absBase))
}

func TestValidateArchiveName(t *testing.T) {
	assert.NoError(t, ValidateArchiveName("message.eml"))
	assert.NoError(t, ValidateArchiveName("MESSAGE.EML"))
	assert.ErrorIs(t, ValidateArchiveName("message.txt"), ErrUnsupportedExt)
	assert.ErrorIs(t, ValidateArchiveName("message"), ErrUnsupportedExt)
}

func TestSave_WritesUnderDatedDirectory(t *testing.T) {
	ls := newTestArchive(t)

	ref, err := ls.Save("0b7e6f1c.eml", strings.NewReader("Subject: hi\r\n\r\nbody"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref, "2030/03/04/0b7e6f1c-"))
	assert.True(t, strings.HasSuffix(ref, ".eml"))

	reader, err := ls.Get(ref)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "Subject: hi\r\n\r\nbody", string(data))
}

func TestSave_RepeatedNameGetsDistinctRefs(t *testing.T) {
	ls := newTestArchive(t)

	first, err := ls.Save("same.eml", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := ls.Save("same.eml", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestSave_SanitizesName(t *testing.T) {
	ls := newTestArchive(t)

	ref, err := ls.Save("../../evil.eml", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = ls.validatePath(ref)
	assert.NoError(t, err)
	assert.NotContains(t, ref, "..")
}

func TestSave_RejectsOtherExtensions(t *testing.T) {
	ls := newTestArchive(t)

	_, err := ls.Save("payload.sh", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedExt)
}

func TestSave_RejectsOversizedContent(t *testing.T) {
	ls := newTestArchive(t)

	big := io.LimitReader(zeroReader{}, MaxArchiveSize+10)
	_, err := ls.Save("big.eml", big)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	entries, err := os.ReadDir(filepath.Join(ls.basePath, "2030", "03", "04"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGet_PathTraversal(t *testing.T) {
	ls := newTestArchive(t)

	_, err := ls.Get("../../../etc/passwd")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestGet_FileNotFound(t *testing.T) {
	ls := newTestArchive(t)

	_, err := ls.Get("2030/03/04/missing.eml")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDelete_RemovesFile(t *testing.T) {
	ls := newTestArchive(t)

	ref, err := ls.Save("gone.eml", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, ls.Delete(ref))

	_, err = ls.Get(ref)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDelete_NonexistentFile(t *testing.T) {
	ls := newTestArchive(t)

	assert.NoError(t, ls.Delete("2030/03/04/nothing.eml"))
}

func TestDelete_PathTraversal(t *testing.T) {
	ls := newTestArchive(t)

	assert.ErrorIs(t, ls.Delete("../../../etc/passwd"), ErrPathTraversal)
}

func TestNewLocalArchive_CreatesDirectory(t *testing.T) {
	newDir := filepath.Join(t.TempDir(), "new", "nested", "dir")

	_, err := NewLocalArchive(newDir)
	require.NoError(t, err)

	info, err := os.Stat(newDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
