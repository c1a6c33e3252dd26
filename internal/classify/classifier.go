package classify

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxHistory bounds the in-memory classification history.
const maxHistory = 1000

// HistoryEntry records one classification call.
type HistoryEntry struct {
	Text         string
	Features     TaskFeatures
	ClassifiedAt time.Time
}

// Stats aggregates the classification history.
type Stats struct {
	TotalClassified   int
	CategoryCounts    map[Category]int
	ComplexityCounts  map[Complexity]int
	LanguageCounts    map[Language]int
	AverageConfidence float64
}

// Classifier extracts TaskFeatures from task text using static keyword
// tables. Every lookup is a case-insensitive substring test. Classification
// is deterministic for identical inputs; the only shared mutable state is
// the history used by Stats.
type Classifier struct {
	extPattern  *regexp.Regexp
	wordPattern *regexp.Regexp

	mu      sync.Mutex
	history []HistoryEntry
}

// NewClassifier creates a Classifier with the default tables.
func NewClassifier() *Classifier {
	return &Classifier{
		extPattern:  regexp.MustCompile(`\.\w{2,4}\b`),
		wordPattern: regexp.MustCompile(`\b[a-z]+\b`),
	}
}

// Classify extracts features from the task text. ctx may be nil.
// Every input produces a TaskFeatures; the category list is never empty.
func (c *Classifier) Classify(text string, ctx *Context) TaskFeatures {
	lower := strings.ToLower(text)

	var files []string
	hasFiles := false
	if ctx != nil && ctx.Files != nil {
		files = ctx.Files
		hasFiles = true
	}

	f := TaskFeatures{
		Categories:   extractCategories(lower),
		Complexity:   determineComplexity(lower, files, hasFiles),
		Languages:    extractLanguages(lower, files),
		Frameworks:   extractFrameworks(lower),
		Keywords:     c.extractKeywords(lower),
		FilePatterns: c.extractFilePatterns(text),
	}

	f.RequiresTesting = f.HasCategory(CategoryTesting) ||
		containsAny(lower, testingKeywords) ||
		f.HasCategory(CategoryDevelopment) ||
		f.HasCategory(CategoryDebugging)
	f.RequiresReview = strings.Contains(lower, "review") || f.Complexity >= ComplexityComplex
	f.RequiresDeployment = f.HasCategory(CategoryDeployment)
	f.RequiresDocumentation = f.HasCategory(CategoryDocumentation) ||
		containsAny(lower, docKeywords) ||
		f.HasCategory(CategoryDevelopment) ||
		f.HasCategory(CategoryAPIDesign)

	f.IsBugFix = f.HasCategory(CategoryDebugging) || strings.Contains(lower, "fix")
	f.IsNewFeature = f.HasCategory(CategoryDevelopment) && strings.Contains(lower, "new")
	f.IsRefactor = f.HasCategory(CategoryRefactoring)
	f.IsResearch = f.HasCategory(CategoryResearch)

	f.EstimatedFiles = complexityFileEstimate[f.Complexity]

	f.HasDatabase = f.HasCategory(CategoryDatabase) || containsAny(lower, databaseKeywords)
	f.HasAPI = f.HasCategory(CategoryAPIDesign) || strings.Contains(lower, "api")
	f.HasUI = f.HasCategory(CategoryUIUX) || containsAny(lower, uiKeywords)
	f.SecurityImplications = f.HasCategory(CategorySecurity) || containsAny(lower, securityKeywords)

	f.Confidence = confidence(f)

	c.record(text, f)
	return f
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func extractCategories(lower string) []Category {
	var categories []Category
	for _, rule := range categoryTable {
		if containsAny(lower, rule.keywords) {
			categories = append(categories, rule.category)
		}
	}
	if len(categories) == 0 {
		categories = []Category{CategoryDevelopment}
	}
	return categories
}

// determineComplexity checks keyword buckets first, then the file count when
// the caller supplied a file list, then falls back to word count. The
// word-count fallback never yields trivial or very_complex.
func determineComplexity(lower string, files []string, hasFiles bool) Complexity {
	for _, bucket := range complexityTable {
		if containsAny(lower, bucket.keywords) {
			return bucket.level
		}
	}

	if hasFiles {
		switch n := len(files); {
		case n == 1:
			return ComplexitySimple
		case n <= 3:
			return ComplexityModerate
		case n <= 10:
			return ComplexityComplex
		default:
			return ComplexityVeryComplex
		}
	}

	switch words := len(strings.Fields(lower)); {
	case words < 20:
		return ComplexitySimple
	case words < 50:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

func extractLanguages(lower string, files []string) []Language {
	seen := make(map[Language]bool)
	var languages []Language
	add := func(l Language) {
		if !seen[l] {
			seen[l] = true
			languages = append(languages, l)
		}
	}

	for _, entry := range languageTable {
		if containsAny(lower, entry.keywords) {
			add(entry.language)
		}
	}
	for _, file := range files {
		if l, ok := extensionLanguages[strings.ToLower(filepath.Ext(file))]; ok {
			add(l)
		}
	}
	return languages
}

func extractFrameworks(lower string) []Framework {
	var frameworks []Framework
	for _, entry := range frameworkTable {
		if containsAny(lower, entry.keywords) {
			frameworks = append(frameworks, entry.framework)
		}
	}
	return frameworks
}

// extractKeywords returns the ten most frequent words longer than two
// characters. Ties keep first-seen order.
func (c *Classifier) extractKeywords(lower string) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range c.wordPattern.FindAllString(lower, -1) {
		if len(w) <= 2 || stopwords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > 10 {
		order = order[:10]
	}
	return order
}

// extractFilePatterns reports every extension-like token in the original
// text followed by any well-known directory prefixes as globs.
func (c *Classifier) extractFilePatterns(text string) []string {
	patterns := c.extPattern.FindAllString(text, -1)
	for _, dir := range directoryHints {
		if strings.Contains(text, dir) {
			patterns = append(patterns, dir+"*")
		}
	}
	return patterns
}

func confidence(f TaskFeatures) float64 {
	score := 0.5 +
		0.1*float64(len(f.Categories)) +
		0.1*float64(len(f.Languages)) +
		0.05*float64(len(f.Frameworks))
	return min(score, 1.0)
}

func (c *Classifier) record(text string, f TaskFeatures) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, HistoryEntry{Text: text, Features: f, ClassifiedAt: time.Now()})
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
}

// History returns a copy of the recorded classifications, oldest first.
func (c *Classifier) History() []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// Stats aggregates the classification history.
func (c *Classifier) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		TotalClassified:  len(c.history),
		CategoryCounts:   make(map[Category]int),
		ComplexityCounts: make(map[Complexity]int),
		LanguageCounts:   make(map[Language]int),
	}
	var total float64
	for _, entry := range c.history {
		for _, cat := range entry.Features.Categories {
			stats.CategoryCounts[cat]++
		}
		stats.ComplexityCounts[entry.Features.Complexity]++
		for _, l := range entry.Features.Languages {
			stats.LanguageCounts[l]++
		}
		total += entry.Features.Confidence
	}
	if len(c.history) > 0 {
		stats.AverageConfidence = total / float64(len(c.history))
	}
	return stats
}
