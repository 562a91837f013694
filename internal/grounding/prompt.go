package grounding

import (
	"fmt"
	"strings"

	"github.com/ternarybob/auspex/internal/interfaces"
)

// sectionTitles is the mandatory narrative structure, in order. The backend
// returns one body per section; the fallback template produces the same
// shape.
var sectionTitles = [7]string{
	"Overview",
	"Data Window",
	"Model Comparison",
	"Best Model Rationale",
	"Residual Behavior",
	"Volatility and Regime Context",
	"Caveats",
}

const systemPrompt = `You are a senior electricity market analyst writing a congestion-income forecast evaluation.

You will receive a fact list. Every number, label, comparison, and feature name you use MUST be taken verbatim from that list. Do not compute, convert, round beyond the given precision, or compare values yourself: comparisons between the random forest and the baselines are provided as "smaller"/"larger"/"equal" facts and must be quoted as given. If something cannot be determined from the facts, write "This cannot be determined from the provided statistics."

Do not introduce metrics, features, or causes (weather, outages, grid events) that are not in the fact list.

Produce exactly 7 sections, in this order:

1. Overview
2. Data Window
3. Model Comparison
4. Best Model Rationale
5. Residual Behavior
6. Volatility and Regime Context
7. Caveats

Each section is 3 to 6 analytical sentences and MUST end with a bullet list opened by the literal line "**Hard facts:**", quoting the exact figures the section used.

Return ONLY one JSON object, no surrounding prose and no code fences:

{
  "section_1": "text...\n\n**Hard facts:**\n- fact\n- fact",
  "section_2": "...",
  "section_3": "...",
  "section_4": "...",
  "section_5": "...",
  "section_6": "...",
  "section_7": "..."
}

Every value must be a single string; bullet lists live inside the string using "- " prefixes.`

const retryPrompt = `Your previous answer contained numbers that do not appear in the fact list. This attempt is final: use ONLY figures copied character for character from the facts below, restate no value in different units or precision, and prefer quoting fewer numbers over paraphrasing any.`

// buildMessages assembles the conversation for one generation attempt
func buildMessages(payload *Payload, retry bool) []interfaces.Message {
	var user strings.Builder
	if retry {
		user.WriteString(retryPrompt)
		user.WriteString("\n\n")
	}
	user.WriteString("FACTS (sole source of every figure):\n\n")
	user.WriteString(payload.Render())

	return []interfaces.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user.String()},
	}
}

// sectionTitle returns the display title for a 1-based section number
func sectionTitle(n int) string {
	if n < 1 || n > len(sectionTitles) {
		return fmt.Sprintf("Section %d", n)
	}
	return sectionTitles[n-1]
}

// ResponseSchema returns the JSON schema of the expected response, for
// backends that can enforce structured output
func ResponseSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(sectionTitles))
	required := make([]string, 0, len(sectionTitles))
	for i, title := range sectionTitles {
		key := fmt.Sprintf("section_%d", i+1)
		properties[key] = map[string]interface{}{
			"type":        "string",
			"description": title,
		}
		required = append(required, key)
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
