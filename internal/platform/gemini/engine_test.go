package gemini

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/finsight-api/internal/analysis"
)

func TestParseReport(t *testing.T) {
	t.Parallel()

	t.Run("parses a well-formed response", func(t *testing.T) {
		t.Parallel()

		raw := `{
			"analysis": "Revenue grew 12% while margins compressed.",
			"metrics": {
				"revenue": 1250000.0,
				"profit_margin": 0.145,
				"debt_ratio": 0.38,
				"pe_ratio": 18.2,
				"recommendation": "hold",
				"risk_level": "medium"
			}
		}`

		report, err := parseReport(raw)
		require.NoError(t, err)

		assert.Equal(t, "Revenue grew 12% while margins compressed.", report.Analysis)
		require.NotNil(t, report.Metrics.Revenue)
		assert.InDelta(t, 1250000.0, *report.Metrics.Revenue, 0.01)
		require.NotNil(t, report.Metrics.ProfitMargin)
		assert.InDelta(t, 0.145, *report.Metrics.ProfitMargin, 0.0001)
		assert.Equal(t, "hold", report.Metrics.Recommendation)
		assert.Equal(t, "medium", report.Metrics.RiskLevel)
	})

	t.Run("parses a response with null metrics", func(t *testing.T) {
		t.Parallel()

		raw := `{
			"analysis": "The document does not contain financial statements.",
			"metrics": {
				"revenue": null,
				"profit_margin": null,
				"debt_ratio": null,
				"pe_ratio": null,
				"recommendation": "hold",
				"risk_level": "low"
			}
		}`

		report, err := parseReport(raw)
		require.NoError(t, err)

		assert.Nil(t, report.Metrics.Revenue)
		assert.Nil(t, report.Metrics.ProfitMargin)
		assert.Nil(t, report.Metrics.DebtRatio)
		assert.Nil(t, report.Metrics.PERatio)
	})

	t.Run("strips markdown code fences", func(t *testing.T) {
		t.Parallel()

		raw := "```json\n{\"analysis\": \"Stable cash flow.\", \"metrics\": {}}\n```"

		report, err := parseReport(raw)
		require.NoError(t, err)
		assert.Equal(t, "Stable cash flow.", report.Analysis)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()

		_, err := parseReport("the company looks healthy")
		assert.ErrorIs(t, err, analysis.ErrInvalidResponse)
	})

	t.Run("rejects an empty narrative", func(t *testing.T) {
		t.Parallel()

		_, err := parseReport(`{"analysis": "", "metrics": {}}`)
		assert.ErrorIs(t, err, analysis.ErrInvalidResponse)
	})
}

func TestLoadPromptTemplate(t *testing.T) {
	t.Parallel()

	t.Run("uses the embedded default when no path is configured", func(t *testing.T) {
		t.Parallel()

		tmpl, err := loadPromptTemplate("")
		require.NoError(t, err)

		prompt, err := renderPrompt(tmpl, "What is the revenue trend?", "q3.pdf")
		require.NoError(t, err)

		assert.Contains(t, prompt, "What is the revenue trend?")
		assert.Contains(t, prompt, "q3.pdf")
	})

	t.Run("loads a custom template from disk", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "prompt.tmpl")
		require.NoError(t, os.WriteFile(path, []byte("Q: {{.Query}} F: {{.FileName}}"), 0o600))

		tmpl, err := loadPromptTemplate(path)
		require.NoError(t, err)

		prompt, err := renderPrompt(tmpl, "debt ratio?", "annual.pdf")
		require.NoError(t, err)
		assert.Equal(t, "Q: debt ratio? F: annual.pdf", prompt)
	})

	t.Run("returns ErrInvalidConfig for a missing template file", func(t *testing.T) {
		t.Parallel()

		_, err := loadPromptTemplate(filepath.Join(t.TempDir(), "nope.tmpl"))
		assert.ErrorIs(t, err, analysis.ErrInvalidConfig)
	})

	t.Run("returns ErrInvalidConfig for an unparseable template", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "bad.tmpl")
		require.NoError(t, os.WriteFile(path, []byte("{{.Query"), 0o600))

		_, err := loadPromptTemplate(path)
		assert.ErrorIs(t, err, analysis.ErrInvalidConfig)
	})
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	base := 2 * time.Second

	first := backoffDelay(base, 1, rng)
	assert.GreaterOrEqual(t, first, base)
	assert.Less(t, first, base+base/2+time.Millisecond)

	second := backoffDelay(base, 2, rng)
	assert.GreaterOrEqual(t, second, 2*base)
	assert.Less(t, second, 3*base+time.Millisecond)
}
