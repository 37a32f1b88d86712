package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenReadFallsBackToInput(t *testing.T) {
	f := New(map[string][]byte{"main.tex": []byte("\\documentclass{article}")})

	b, ok := f.OpenRead("main.tex")
	require.True(t, ok)
	assert.Equal(t, "\\documentclass{article}", string(b))
}

func TestCreateWriteShadowsInput(t *testing.T) {
	f := New(map[string][]byte{"main.aux": []byte("old")})
	f.CreateWrite("main.aux", []byte("new"))

	b, ok := f.OpenRead("main.aux")
	require.True(t, ok)
	assert.Equal(t, "new", string(b))
}

func TestListMergesBothViews(t *testing.T) {
	f := New(map[string][]byte{"main.tex": []byte("x")})
	f.CreateWrite(OutputPDFName, []byte("%PDF-1.5"))

	assert.Equal(t, []string{"main.tex", OutputPDFName}, f.List())
}

func TestOutputPDFMissingIsError(t *testing.T) {
	f := New(map[string][]byte{})
	_, err := f.OutputPDF()
	assert.Error(t, err)
}

func TestOutputPDFReturnsWrittenBytes(t *testing.T) {
	f := New(map[string][]byte{})
	f.CreateWrite(OutputPDFName, []byte("%PDF-1.5 body"))

	b, err := f.OutputPDF()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5 body", string(b))
}

func TestRemoveOnlyAffectsOutputView(t *testing.T) {
	f := New(map[string][]byte{"main.tex": []byte("x")})
	f.CreateWrite("scratch.aux", []byte("y"))
	f.Remove("scratch.aux")

	_, ok := f.OpenRead("scratch.aux")
	assert.False(t, ok)

	_, ok = f.OpenRead("main.tex")
	assert.True(t, ok)
}
