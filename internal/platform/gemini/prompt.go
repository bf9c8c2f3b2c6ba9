package gemini

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"github.com/finsight/finsight-api/internal/analysis"
)

//go:embed prompt.tmpl
var defaultPromptTemplate string

// promptData is the data passed to the prompt template.
type promptData struct {
	// Query is the user's analysis question.
	Query string

	// FileName is the original name of the document under analysis.
	FileName string
}

// loadPromptTemplate parses the prompt template, reading it from path when
// one is configured and falling back to the embedded default otherwise.
func loadPromptTemplate(path string) (*template.Template, error) {
	content := defaultPromptTemplate
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
				analysis.ErrInvalidConfig, path, err)
		}
		content = string(raw)
	}

	tmpl, err := template.New("analysis").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			analysis.ErrInvalidConfig, err)
	}
	return tmpl, nil
}

// renderPrompt executes the template with the query and document name.
func renderPrompt(tmpl *template.Template, query, fileName string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{Query: query, FileName: fileName}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
