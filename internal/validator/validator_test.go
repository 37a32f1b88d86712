package validator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmptyInput(t *testing.T) {
	res := Validate("")
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "documentclass")
}

func TestValidateWellFormedDocument(t *testing.T) {
	res := Validate(`\documentclass{article}
\begin{document}
Hello
\end{document}`)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateEnvironmentMismatch(t *testing.T) {
	res := Validate(`\documentclass{article}\begin{document}\begin{itemize}\item a\end{enumerate}\end{document}`)

	require.False(t, res.Valid)
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e.Message, "mismatch") && strings.Contains(e.Message, "itemize") && strings.Contains(e.Message, "enumerate") {
			found = true
		}
	}
	assert.True(t, found, "expected a mismatch error naming itemize and enumerate, got %+v", res.Errors)
}

func TestValidateDeprecationWarnings(t *testing.T) {
	res := Validate(`\documentclass{article}\begin{document}$$x$$ \bf y\end{document}`)

	require.True(t, res.Valid)
	assert.Len(t, res.Warnings, 2)
}

func TestValidateUnbalancedBraces(t *testing.T) {
	res := Validate(`\documentclass{article}\begin{document}\textbf{oops\end{document}`)
	require.False(t, res.Valid)

	found := false
	for _, e := range res.Errors {
		if strings.Contains(e.Message, "unbalanced braces") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateEscapedBracesDoNotCountAsGrouping(t *testing.T) {
	res := Validate(`\documentclass{article}\begin{document}literal \{ and \} braces\end{document}`)
	assert.True(t, res.Valid)
}

func TestValidateIsIdempotent(t *testing.T) {
	source := `\documentclass{article}\begin{document}\begin{itemize}\item a\end{document}`

	first, err := json.Marshal(Validate(source))
	require.NoError(t, err)
	second, err := json.Marshal(Validate(source))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
