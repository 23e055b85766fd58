package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

func TestSummarizeEmptyScoresFallsBack(t *testing.T) {
	got := Summarize(nil)
	assert.Equal(t, summaryFallback, got)
	assert.Equal(t, summaryFallback, Summarize(domain.Scores{}))
}

func TestSummarizeLeadsWithTopClass(t *testing.T) {
	got := Summarize(domain.Scores{"sick": 0.82, "healthy": 0.18})

	assert.Contains(t, got, "Probabilidade mais elevada para sick (82.0%).")
	assert.Contains(t, got, "- sick: 82.0%")
	assert.Contains(t, got, "- healthy: 18.0%")
	assert.True(t, strings.HasSuffix(got, summaryDisclaimer))
}

func TestSummarizeOrdersDescending(t *testing.T) {
	got := Summarize(domain.Scores{"a": 0.1, "b": 0.6, "c": 0.3})

	ib := strings.Index(got, "- b:")
	ic := strings.Index(got, "- c:")
	ia := strings.Index(got, "- a:")
	assert.True(t, ib < ic && ic < ia, "classes ordered by probability, got:\n%s", got)
}

func TestSummarizeTiesBreakByLabel(t *testing.T) {
	got := Summarize(domain.Scores{"zeta": 0.5, "alpha": 0.5})
	assert.Contains(t, got, "Probabilidade mais elevada para alpha (50.0%).")
}
