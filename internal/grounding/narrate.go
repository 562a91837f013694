package grounding

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/interfaces"
	"github.com/ternarybob/auspex/internal/models"
)

// MismatchError carries the unverifiable claims of one rejected generation
// attempt. It never fails a run: the narrator retries, then falls back.
type MismatchError struct {
	Attempt    int
	Mismatches []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("attempt %d produced %d unverifiable claims", e.Attempt, len(e.Mismatches))
}

// Config controls narrative generation and verification
type Config struct {
	Tolerance   float64       // Relative tolerance for numeric claims
	Timeout     time.Duration // Per-attempt backend timeout
	TopFeatures int           // Importance entries exposed to the narrative
}

// Narrator turns a grounding payload into a verified narrative. The backend
// call is the pipeline's only external I/O: each attempt runs under its own
// timeout, one retry is made on unverifiable output, and the deterministic
// template takes over when both attempts fail. A nil generator always takes
// the template path.
type Narrator struct {
	generator interfaces.Generator
	cfg       Config
	logger    arbor.ILogger
}

// NewNarrator builds a narrator over the given backend, which may be nil for
// offline operation
func NewNarrator(generator interfaces.Generator, cfg Config) *Narrator {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.01
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.TopFeatures <= 0 {
		cfg.TopFeatures = 5
	}
	return &Narrator{
		generator: generator,
		cfg:       cfg,
		logger:    common.GetLogger(),
	}
}

// Narrate generates and verifies the narrative for the payload. The returned
// narrative is always usable: a verified backend narrative when an attempt
// passes, the labeled template otherwise. The error is reserved for an
// unusable payload or a canceled context.
func (n *Narrator) Narrate(ctx context.Context, payload *Payload) (*models.Narrative, error) {
	if payload == nil || len(payload.Facts) == 0 {
		return nil, fmt.Errorf("cannot narrate an empty payload")
	}

	narrative := &models.Narrative{
		PayloadVersion: payload.Version,
		GeneratedAt:    time.Now().UTC(),
	}

	if n.generator == nil {
		n.logger.Info().Msg("No narrative backend configured, using template narrative")
		return n.fallback(narrative, payload), nil
	}

	var lastMismatches []string
	for attempt := 1; attempt <= 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		narrative.Attempts = attempt

		sections, err := n.generate(ctx, payload, attempt > 1)
		if err != nil {
			n.logger.Warn().Err(err).Int("attempt", attempt).Msg("Narrative generation failed")
			lastMismatches = []string{fmt.Sprintf("attempt %d: %v", attempt, err)}
			continue
		}

		mismatches := n.verifySections(sections, payload)
		if len(mismatches) == 0 {
			narrative.Sections = sections
			narrative.Grounded = true
			narrative.Model = n.generator.ModelName()
			n.logger.Info().
				Int("attempt", attempt).
				Int("sections", len(sections)).
				Msg("Narrative verified against payload")
			return narrative, nil
		}

		lastMismatches = mismatches
		n.logger.Warn().
			Int("attempt", attempt).
			Int("mismatches", len(mismatches)).
			Str("first", mismatches[0]).
			Msg("Narrative rejected: unverifiable claims")
	}

	narrative.Mismatches = lastMismatches
	return n.fallback(narrative, payload), nil
}

// generate runs one backend attempt under its own timeout and parses the
// sectioned response
func (n *Narrator) generate(ctx context.Context, payload *Payload, retry bool) ([]models.NarrativeSection, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	text, err := n.generator.Generate(attemptCtx, buildMessages(payload, retry))
	if err != nil {
		return nil, err
	}
	return parseSections(text)
}

// verifySections checks every numeric claim and the hard-facts contract
func (n *Narrator) verifySections(sections []models.NarrativeSection, payload *Payload) []string {
	var mismatches []string
	for i, s := range sections {
		if !strings.Contains(s.Body, "**Hard facts:**") {
			mismatches = append(mismatches, fmt.Sprintf("section %d (%s) missing the hard facts block", i+1, s.Title))
		}
		for _, m := range Verify(s.Body, payload, n.cfg.Tolerance) {
			mismatches = append(mismatches, fmt.Sprintf("section %d (%s): %s", i+1, s.Title, m))
		}
	}
	return mismatches
}

// fallback fills the narrative with the deterministic template and labels it
func (n *Narrator) fallback(narrative *models.Narrative, payload *Payload) *models.Narrative {
	narrative.Sections = fallbackSections(payload)
	narrative.Fallback = true
	narrative.Model = ""
	// The template quotes facts verbatim, so this should always hold; checking
	// keeps the grounded flag honest instead of assumed
	narrative.Grounded = len(n.verifySections(narrative.Sections, payload)) == 0
	return narrative
}

var sectionPattern = regexp.MustCompile(`(?s)"section_(\d+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

var sectionUnescaper = strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\\`, `\`)

// parseSections decodes the backend's JSON object of section_1..section_7
// strings. Backends drift from strict JSON under pressure, so a regex pass
// recovers sections from imperfect output before giving up.
func parseSections(text string) ([]models.NarrativeSection, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	bodies := map[int]string{}

	var decoded map[string]string
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		for key, body := range decoded {
			num, err := strconv.Atoi(strings.TrimPrefix(key, "section_"))
			if err != nil || !strings.HasPrefix(key, "section_") {
				continue
			}
			bodies[num] = body
		}
	} else {
		for _, m := range sectionPattern.FindAllStringSubmatch(text, -1) {
			num, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			bodies[num] = sectionUnescaper.Replace(m[2])
		}
	}

	if len(bodies) == 0 {
		return nil, fmt.Errorf("no sections found in backend response")
	}

	sections := make([]models.NarrativeSection, 0, len(sectionTitles))
	for i := 1; i <= len(sectionTitles); i++ {
		body, ok := bodies[i]
		if !ok {
			return nil, fmt.Errorf("backend response missing section_%d", i)
		}
		sections = append(sections, models.NarrativeSection{
			Title: sectionTitle(i),
			Body:  strings.TrimSpace(body),
		})
	}
	return sections, nil
}
