package ingestion

import (
	"archive/zip"
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tachyontex/tachyon-tex/internal/project"
)

func buildMultipartRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(name, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/compile", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestFromMultipartNormalizesFiles(t *testing.T) {
	req := buildMultipartRequest(t, map[string]string{
		"paper.tex": `\documentclass{article}\begin{document}x\end{document}`,
	})
	require.NoError(t, req.ParseMultipartForm(1<<20))

	p, err := FromMultipart(req.MultipartForm, DefaultLimits(32))
	require.NoError(t, err)
	fc, ok := p.Files["paper.tex"]
	require.True(t, ok)
	assert.Equal(t, project.KindText, fc.Kind)
}

func TestFromMultipartNoFilesFails(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("note", "hello"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/compile", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1 << 20))

	_, err := FromMultipart(req.MultipartForm, DefaultLimits(32))
	require.Error(t, err)
	assert.True(t, errors.Is(err, project.ErrNoFiles))
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFromZipExtractsEntries(t *testing.T) {
	data := buildZip(t, map[string]string{
		"main.tex":   `\documentclass{article}\begin{document}x\end{document}`,
		"helper.tex": `\newcommand{\g}{G}`,
	})

	p, err := FromZip(data, DefaultLimits(32))
	require.NoError(t, err)
	assert.Len(t, p.Files, 2)
}

func TestFromZipRejectsPathTraversal(t *testing.T) {
	data := buildZip(t, map[string]string{"../../etc/passwd": "x"})

	_, err := FromZip(data, DefaultLimits(32))
	require.Error(t, err)
	assert.True(t, errors.Is(err, project.ErrInvalidPath))
}

func TestFromZipRejectsExcessiveExpansion(t *testing.T) {
	data := buildZip(t, map[string]string{"main.tex": strings.Repeat("a", 1000)})

	limits := Limits{MaxDecodedBytes: 1 << 20, MaxExpansionRate: 1}
	_, err := FromZip(data, limits)
	require.Error(t, err)
	assert.True(t, errors.Is(err, project.ErrProjectTooLarge))
}

func TestFromJSONDecodesAllThreeKinds(t *testing.T) {
	raw := []byte(`{
		"main": "main.tex",
		"files": {
			"main.tex": "\\documentclass{article}",
			"logo.png": {"base64": "aGVsbG8="},
			"photo.png": {"type": "hash", "value": "00000000000003e7"}
		}
	}`)

	p, err := FromJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, project.KindText, p.Files["main.tex"].Kind)
	assert.Equal(t, project.KindBinary, p.Files["logo.png"].Kind)
	assert.Equal(t, "hello", string(p.Files["logo.png"].Bytes))
	require.Equal(t, project.KindHashRef, p.Files["photo.png"].Kind)
	assert.Equal(t, uint64(999), p.Files["photo.png"].Hash)
	assert.Equal(t, "main.tex", p.RootName)
}

func TestFromJSONRejectsBadPath(t *testing.T) {
	raw := []byte(`{"files": {"../escape.tex": "x"}}`)
	_, err := FromJSON(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, project.ErrInvalidPath))
}

func TestFromJSONEmptyFilesFails(t *testing.T) {
	_, err := FromJSON([]byte(`{"files": {}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, project.ErrNoFiles))
}
