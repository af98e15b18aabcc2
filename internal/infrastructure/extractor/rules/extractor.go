package rules

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

//go:embed default_lexicon.yaml
var defaultLexicon []byte

type lexiconFile struct {
	ContextWindow int         `yaml:"context_window"`
	Kinds         []kindRules `yaml:"kinds"`
}

type kindRules struct {
	Kind       string     `yaml:"kind"`
	Confidence float64    `yaml:"confidence"`
	Terms      []termRule `yaml:"terms"`
}

type termRule struct {
	Match     string   `yaml:"match"`
	Canonical string   `yaml:"canonical"`
	Codes     []string `yaml:"codes"`
}

type compiledTerm struct {
	match     string
	canonical string
	codes     []string
}

type compiledKind struct {
	kind       string
	confidence float64
	terms      []compiledTerm
}

// Extractor is a lexicon-driven entity engine: it scans recognized text
// for known terms per entity kind and normalizes hits to their canonical
// forms. Stateless after construction, safe for concurrent use.
type Extractor struct {
	kinds         []compiledKind
	canonical     map[string]map[string]compiledTerm
	contextWindow int
}

// NewExtractor loads the lexicon from path, or the embedded default when
// path is empty.
func NewExtractor(path string) (*Extractor, error) {
	raw := defaultLexicon
	if path != "" {
		fileRaw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lexicon: %w", err)
		}
		raw = fileRaw
	}

	var file lexiconFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse lexicon yaml: %w", err)
	}
	if len(file.Kinds) == 0 {
		return nil, fmt.Errorf("lexicon defines no entity kinds")
	}
	if file.ContextWindow <= 0 {
		file.ContextWindow = 40
	}

	extractor := &Extractor{
		canonical:     make(map[string]map[string]compiledTerm, len(file.Kinds)),
		contextWindow: file.ContextWindow,
	}
	for _, kind := range file.Kinds {
		if kind.Kind == "" || len(kind.Terms) == 0 {
			continue
		}
		if kind.Confidence <= 0 || kind.Confidence > 1 {
			kind.Confidence = 0.8
		}
		compiled := compiledKind{kind: kind.Kind, confidence: kind.Confidence}
		byTerm := make(map[string]compiledTerm, len(kind.Terms))
		for _, term := range kind.Terms {
			match := strings.ToLower(strings.TrimSpace(term.Match))
			if match == "" {
				continue
			}
			ct := compiledTerm{match: match, canonical: term.Canonical, codes: term.Codes}
			compiled.terms = append(compiled.terms, ct)
			byTerm[match] = ct
		}
		// Longest first so "diabetes mellitus" wins over "diabetes".
		sort.Slice(compiled.terms, func(i, j int) bool {
			return len(compiled.terms[i].match) > len(compiled.terms[j].match)
		})
		extractor.kinds = append(extractor.kinds, compiled)
		extractor.canonical[kind.Kind] = byTerm
	}
	return extractor, nil
}

func (e *Extractor) Extract(_ context.Context, text string) (domain.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ExtractionResult{}, nil
	}

	lower := foldASCII(text)
	result := domain.ExtractionResult{}

	for _, kind := range e.kinds {
		var items []domain.ExtractedItem
		claimed := make([]span, 0, 4)

		for _, term := range kind.terms {
			for _, start := range findOccurrences(lower, term.match) {
				end := start + len(term.match)
				if overlaps(claimed, start, end) {
					continue
				}
				claimed = append(claimed, span{start, end})
				items = append(items, domain.ExtractedItem{
					Text:       text[start:end],
					Confidence: kind.confidence,
					Context:    contextWindow(text, start, end, e.contextWindow),
					Start:      start,
					End:        end,
					Codes:      term.codes,
				})
			}
		}
		if len(items) > 0 {
			sort.Slice(items, func(i, j int) bool { return items[i].Start < items[j].Start })
			result[kind.kind] = items
		}
	}
	return result, nil
}

// Normalize maps a raw span to its canonical lexicon form. Unknown terms
// fall back to a trimmed, first-letter-capitalized rendition.
func (e *Extractor) Normalize(text, kind string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	if byTerm, ok := e.canonical[kind]; ok {
		if term, ok := byTerm[strings.ToLower(trimmed)]; ok && term.canonical != "" {
			return term.canonical
		}
	}
	runes := []rune(trimmed)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// foldASCII lowercases ASCII letters in place of strings.ToLower, which
// can change the byte length of non-ASCII runes and desynchronize match
// offsets from the original text. Lexicon terms are ASCII, so folding
// only the ASCII range loses no matches.
func foldASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

type span struct{ start, end int }

func overlaps(claimed []span, start, end int) bool {
	for _, s := range claimed {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// findOccurrences returns word-boundary match offsets of term in lower.
func findOccurrences(lower, term string) []int {
	var offsets []int
	from := 0
	for {
		idx := strings.Index(lower[from:], term)
		if idx < 0 {
			return offsets
		}
		start := from + idx
		end := start + len(term)
		if boundaryBefore(lower, start) && boundaryAfter(lower, end) {
			offsets = append(offsets, start)
		}
		from = start + 1
	}
}

func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	return !isWordByte(s[idx-1])
}

func boundaryAfter(s string, idx int) bool {
	if idx >= len(s) {
		return true
	}
	return !isWordByte(s[idx])
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func contextWindow(text string, start, end, window int) string {
	from := start - window
	if from < 0 {
		from = 0
	}
	to := end + window
	if to > len(text) {
		to = len(text)
	}
	return strings.TrimSpace(text[from:to])
}
