package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterEditor registers GET /, a minimal browser editor that submits a
// single .tex file to /compile and renders the resulting PDF.
func RegisterEditor(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, editorHTML)
	})
}

const editorHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Tachyon-Tex</title>
  </head>
  <body>
    <h1>Tachyon-Tex</h1>
    <textarea id="src" rows="20" cols="80">\documentclass{article}
\begin{document}
Hello, world!
\end{document}</textarea>
    <br />
    <button id="compile">Compile</button>
    <pre id="status"></pre>
    <iframe id="pdf" style="width:100%;height:600px;border:1px solid #ccc;"></iframe>
    <script>
      document.getElementById('compile').addEventListener('click', async () => {
        const status = document.getElementById('status')
        status.textContent = 'compiling...'
        const form = new FormData()
        const blob = new Blob([document.getElementById('src').value], {type: 'text/plain'})
        form.append('main.tex', blob, 'main.tex')
        const res = await fetch('/compile', {method: 'POST', body: form})
        if (!res.ok) {
          status.textContent = 'error ' + res.status + ': ' + await res.text()
          return
        }
        status.textContent = 'cache=' + res.headers.get('X-Cache') + ' compile_ms=' + res.headers.get('X-Compile-Time-Ms')
        const pdfBlob = await res.blob()
        document.getElementById('pdf').src = URL.createObjectURL(pdfBlob)
      })
    </script>
  </body>
</html>`
