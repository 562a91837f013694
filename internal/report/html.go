package report

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// htmlShell wraps the converted body in a self-contained page. Styling is
// embedded so the file can be mailed or archived without assets.
const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif;
       color: #1f2430; background: #f5f6f8; margin: 0; }
main { max-width: 920px; margin: 2rem auto; padding: 2rem 2.5rem;
       background: #ffffff; border-radius: 8px;
       box-shadow: 0 1px 4px rgba(20, 24, 40, 0.12); }
h1 { font-size: 1.6rem; border-bottom: 2px solid #e3e6ec; padding-bottom: .4rem; }
h2 { font-size: 1.25rem; margin-top: 2rem; border-bottom: 1px solid #e3e6ec;
     padding-bottom: .3rem; }
h3 { font-size: 1.05rem; margin-top: 1.5rem; }
table { border-collapse: collapse; margin: 1rem 0; width: 100%%; font-size: .92rem; }
th, td { border: 1px solid #d6dae2; padding: .4rem .6rem; text-align: left; }
th { background: #eef0f4; }
tr:nth-child(even) td { background: #fafbfc; }
code { background: #eef0f4; padding: .1rem .3rem; border-radius: 3px;
       font-size: .88em; }
em { color: #5a6170; }
hr { border: 0; border-top: 1px solid #e3e6ec; margin: 2rem 0 1rem; }
</style>
</head>
<body>
<main>
%s</main>
</body>
</html>
`

// RenderHTML converts the markdown report into a self-contained HTML page
func RenderHTML(markdown, title string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}

	page := fmt.Sprintf(htmlShell, html.EscapeString(title), body.String())
	return []byte(page), nil
}
