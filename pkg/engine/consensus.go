package engine

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// singletonBaseline scales a lone source's weight into its score.
const singletonBaseline = 50

// highTierSources is the number of agreeing sources that earns TierHigh.
const highTierSources = 3

var findingNamespace = uuid.MustParse("6f1c3a52-8f0e-4d2b-9a57-0c3f5b1e7d21")

// Stats counts candidate groups by resolution path.
type Stats struct {
	Total     int `json:"total"`
	Agreed    int `json:"agreed"`
	Conflicts int `json:"conflicts"`
	Overrides int `json:"overrides"`
	Dropped   int `json:"dropped_invalid"`
}

// Result is the output of Combine.
type Result struct {
	Findings []ConsensusFinding `json:"findings"`
	Stats    Stats              `json:"stats"`
}

// Engine merges per-source findings into consensus findings.
// It holds only immutable configuration and is safe for concurrent use.
type Engine struct {
	weights ToolWeights
}

// NewEngine creates an engine bound to a weight table.
func NewEngine(weights ToolWeights) *Engine {
	return &Engine{weights: weights}
}

// Weights returns the engine's weight table.
func (e *Engine) Weights() ToolWeights {
	return e.weights
}

type candidateGroup struct {
	key      IdentityKey
	members  []Finding
	bySource map[string][]Finding
	order    []string // distinct sources in first-seen order
}

func (g *candidateGroup) add(f Finding) {
	if _, seen := g.bySource[f.Source]; !seen {
		g.order = append(g.order, f.Source)
	}
	g.bySource[f.Source] = append(g.bySource[f.Source], f)
	g.members = append(g.members, f)
}

// Combine groups findings from every source by identity key and resolves
// each group into one ConsensusFinding. Missing, nil or empty sources are
// ignored; malformed findings are logged and dropped.
func (e *Engine) Combine(findingsBySource map[string][]Finding) Result {
	var res Result

	sources := make([]string, 0, len(findingsBySource))
	for s := range findingsBySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	groups := make(map[IdentityKey]*candidateGroup)
	var keys []IdentityKey
	for _, rawSource := range sources {
		source := normalizeSource(rawSource)
		if source == "" {
			log.Warn().Int("findings", len(findingsBySource[rawSource])).Msg("Skipping findings with empty source name")
			continue
		}
		for _, f := range findingsBySource[rawSource] {
			f.Source = source
			f.File = NormalizePath(f.File)
			if err := f.Validate(); err != nil {
				log.Warn().Err(err).Str("source", source).Msg("Dropping malformed finding")
				res.Stats.Dropped++
				continue
			}
			k := f.Key()
			g, ok := groups[k]
			if !ok {
				g = &candidateGroup{key: k, bySource: make(map[string][]Finding)}
				groups[k] = g
				keys = append(keys, k)
			}
			g.add(f)
		}
	}

	for _, k := range keys {
		cf := e.resolve(groups[k], &res.Stats)
		res.Findings = append(res.Findings, cf)
		res.Stats.Total++
	}

	SortFindings(res.Findings)
	return res
}

func (e *Engine) resolve(g *candidateGroup, stats *Stats) ConsensusFinding {
	if len(g.order) == 1 {
		source := g.order[0]
		cf := e.merge(g, g.order)
		cf.Tier = TierLow
		cf.Score = clampScore(e.weights.Weight(source) * singletonBaseline)
		cf.Resolution = ResolutionSingle
		return cf
	}

	agreeing := e.agreeingSources(g)
	if len(agreeing) >= 2 {
		stats.Agreed++
		cf := e.merge(g, agreeing)
		cf.Score = clampScore(e.weights.Sum(agreeing) * 100)
		cf.Tier = TierMedium
		if len(agreeing) >= highTierSources {
			cf.Tier = TierHigh
		}
		cf.Resolution = ResolutionConsensus
		return cf
	}

	stats.Conflicts++
	best, ok := e.weights.Highest(g.order)
	if !ok {
		log.Debug().Str("key", g.key.String()).Strs("sources", g.order).Msg("Conflict without a weighted source left unresolved")
		cf := e.merge(g, []string{g.order[0]})
		cf.Tools = sortedUnique(g.order)
		cf.Tier = TierLow
		cf.Score = 0
		cf.Resolution = ResolutionUnresolved
		return cf
	}

	stats.Overrides++
	log.Debug().Str("key", g.key.String()).Str("winner", best).Strs("sources", g.order).Msg("Conflict settled by highest-weighted source")
	cf := e.merge(g, []string{best})
	cf.Tier = TierHigh
	cf.Score = 100
	cf.Resolution = ResolutionOverride
	return cf
}

// agreeingSources returns the distinct sources that agree on what the
// issue is. Sources are bucketed by vulnerability class; unclassified
// reports do not contradict anyone and join the largest bucket.
func (e *Engine) agreeingSources(g *candidateGroup) []string {
	buckets := make(map[string][]string)
	var classes []string
	var unclassified []string
	for _, source := range g.order {
		class := sourceClass(g.bySource[source])
		if class == "" {
			unclassified = append(unclassified, source)
			continue
		}
		if _, ok := buckets[class]; !ok {
			classes = append(classes, class)
		}
		buckets[class] = append(buckets[class], source)
	}
	if len(classes) == 0 {
		return unclassified
	}

	sort.SliceStable(classes, func(i, j int) bool {
		a, b := buckets[classes[i]], buckets[classes[j]]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		wa, wb := e.weights.Sum(a), e.weights.Sum(b)
		if wa != wb {
			return wa > wb
		}
		return classes[i] < classes[j]
	})
	return append(append([]string(nil), buckets[classes[0]]...), unclassified...)
}

// sourceClass picks the class a single source assigns to this location.
// Duplicate reports from one source count once; the first classified one wins.
func sourceClass(findings []Finding) string {
	for _, f := range findings {
		if c := normalizeClass(f.Class); c != "" {
			return c
		}
	}
	return ""
}

// merge builds the merged record from the findings of the given sources.
func (e *Engine) merge(g *candidateGroup, sources []string) ConsensusFinding {
	var members []Finding
	for _, s := range sources {
		members = append(members, g.bySource[s]...)
	}

	// Highest-weighted source first supplies canonical text.
	ordered := append([]Finding(nil), members...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return e.weights.Weight(ordered[i].Source) > e.weights.Weight(ordered[j].Source)
	})
	primary := ordered[0]

	cf := ConsensusFinding{
		ID:        uuid.NewSHA1(findingNamespace, []byte(g.key.String())).String(),
		Severity:  primary.Severity,
		File:      g.key.File,
		LineStart: g.key.LineStart,
		Class:     normalizeClass(primary.Class),
		Tools:     sortedUnique(sources),
	}

	for _, m := range g.members {
		if m.Severity.MoreSevere(cf.Severity) {
			cf.Severity = m.Severity
		}
	}
	for _, m := range ordered {
		if m.LineEnd > cf.LineEnd {
			cf.LineEnd = m.LineEnd
		}
		if cf.Class == "" {
			cf.Class = normalizeClass(m.Class)
		}
		if cf.Recommendation == "" {
			cf.Recommendation = strings.TrimSpace(m.Recommendation)
		}
	}

	cf.Title = titleFor(cf.Class, primary.Description)
	cf.Description = strings.TrimSpace(primary.Description)
	if descriptionsDiffer(members) {
		cf.Description = fmt.Sprintf("%s - %s detected", cf.Title, strings.Join(cf.Tools, ", "))
	}
	return cf
}

func descriptionsDiffer(members []Finding) bool {
	if len(members) < 2 {
		return false
	}
	first := strings.TrimSpace(members[0].Description)
	for _, m := range members[1:] {
		if strings.TrimSpace(m.Description) != first {
			return true
		}
	}
	return false
}

// titleFor derives a short title from the vulnerability class, falling
// back to the first sentence of the description.
func titleFor(class, description string) string {
	if class != "" {
		words := strings.FieldsFunc(class, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
		for i, w := range words {
			r, size := utf8.DecodeRuneInString(w)
			words[i] = string(unicode.ToUpper(r)) + w[size:]
		}
		return strings.Join(words, " ")
	}
	title := strings.TrimSpace(description)
	if i := strings.IndexAny(title, ".\n"); i > 0 {
		title = title[:i]
	}
	const maxTitle = 80
	if runes := []rune(title); len(runes) > maxTitle {
		title = strings.TrimSpace(string(runes[:maxTitle])) + "..."
	}
	return title
}

func normalizeClass(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// SortFindings orders findings by severity, then score, then location.
func SortFindings(findings []ConsensusFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.LineStart < b.LineStart
	})
}
