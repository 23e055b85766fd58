package analysis

import (
	"fmt"
	"sort"
	"strings"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

const summaryFallback = "Não foi possível gerar uma análise automática. " +
	"Reenvie a imagem ou consulte um especialista."

const summaryDisclaimer = "Este laudo é assistivo e não substitui avaliação médica presencial."

// Summarize renders the reply sent back to the patient. Ordering
// (descending probability, label as tie-break) and one-decimal
// percentages are a stable contract the tests pin down.
func Summarize(scores domain.Scores) string {
	if len(scores) == 0 {
		return summaryFallback
	}

	type entry struct {
		label string
		prob  float64
	}
	ordered := make([]entry, 0, len(scores))
	for label, prob := range scores {
		ordered = append(ordered, entry{label, prob})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].prob != ordered[j].prob {
			return ordered[i].prob > ordered[j].prob
		}
		return ordered[i].label < ordered[j].label
	})

	var b strings.Builder
	b.WriteString("Análise automática da imagem recebida:\n")
	fmt.Fprintf(&b, "Probabilidade mais elevada para %s (%.1f%%).\n\n", ordered[0].label, ordered[0].prob*100)
	b.WriteString("Distribuição estimada por classe:\n")
	for i, e := range ordered {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %.1f%%", e.label, e.prob*100)
	}
	b.WriteString("\n\n")
	b.WriteString(summaryDisclaimer)
	return b.String()
}
