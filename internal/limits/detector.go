package limits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

const (
	// MatchThreshold is the minimum score a pattern needs to be recognized.
	MatchThreshold = 0.5

	httpCodeWeight = 0.8
	keywordWeight  = 0.6
	regexWeight    = 0.7

	// bytesPerToken converts a stated token limit to a serialized size.
	bytesPerToken = 4
)

var tokenLimitRe = regexp.MustCompile(`(\d{3,})\s*tokens`)

type compiledPattern struct {
	ErrorPattern
	keywords []string
	regexes  []*regexp.Regexp
}

// Stats counts detections since the detector was created.
type Stats struct {
	Total        int               `json:"total"`
	Unrecognized int               `json:"unrecognized"`
	ByType       map[ErrorType]int `json:"by_type"`
}

// Detector matches raw failures against the error taxonomy.
// It is safe for concurrent use.
type Detector struct {
	pmu      sync.RWMutex
	patterns []compiledPattern
	custom   map[ErrorType]bool

	mu    sync.Mutex
	stats Stats
}

// Option configures a Detector.
type Option func(*detectorOptions)

type detectorOptions struct {
	patterns []ErrorPattern
}

// WithPatterns replaces the built-in taxonomy.
func WithPatterns(patterns []ErrorPattern) Option {
	return func(o *detectorOptions) { o.patterns = patterns }
}

// NewDetector compiles the taxonomy. Regexes that fail to compile are
// logged and skipped; the rest of their pattern stays usable.
func NewDetector(opts ...Option) *Detector {
	o := detectorOptions{patterns: DefaultPatterns()}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Detector{
		custom: make(map[ErrorType]bool),
		stats:  Stats{ByType: make(map[ErrorType]int)},
	}
	for _, p := range o.patterns {
		d.patterns = append(d.patterns, compile(p))
	}
	return d
}

func compile(p ErrorPattern) compiledPattern {
	cp := compiledPattern{ErrorPattern: p}
	for _, k := range p.Keywords {
		cp.keywords = append(cp.keywords, strings.ToLower(k))
	}
	for _, expr := range p.Regexes {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			log.Printf("[limits] skipping invalid regex %q for %s: %v", expr, p.Type, err)
			continue
		}
		cp.regexes = append(cp.regexes, re)
	}
	return cp
}

// AddPattern registers a custom pattern. A pattern with the same type as
// an existing one replaces it in place; otherwise it is evaluated last.
func (d *Detector) AddPattern(p ErrorPattern) {
	cp := compile(p)
	d.pmu.Lock()
	defer d.pmu.Unlock()
	d.custom[p.Type] = true
	for i := range d.patterns {
		if d.patterns[i].Type == p.Type {
			d.patterns[i] = cp
			log.Printf("[limits] replaced error pattern %s", p.Type)
			return
		}
	}
	d.patterns = append(d.patterns, cp)
	log.Printf("[limits] added error pattern %s", p.Type)
}

// Detect scores every pattern against the input and returns the context
// for the best match, or nil when no pattern reaches MatchThreshold.
func (d *Detector) Detect(in Input) *ErrorContext {
	text := in.Message
	if in.StackTrace != "" {
		text += "\n" + in.StackTrace
	}
	lower := strings.ToLower(text)

	var best *ErrorPattern
	bestScore := 0.0
	d.pmu.RLock()
	for i := range d.patterns {
		p := &d.patterns[i]
		score := p.score(lower, in.HTTPCode)
		if score >= MatchThreshold && score > bestScore {
			matched := p.ErrorPattern
			best = &matched
			bestScore = score
		}
	}
	d.pmu.RUnlock()

	d.mu.Lock()
	d.stats.Total++
	if best == nil {
		d.stats.Unrecognized++
	} else {
		d.stats.ByType[best.Type]++
	}
	d.mu.Unlock()

	if best == nil {
		return nil
	}

	ec := &ErrorContext{
		Timestamp:           time.Now().UTC(),
		ErrorType:           best.Type,
		Message:             in.Message,
		StackTrace:          in.StackTrace,
		HTTPCode:            in.HTTPCode,
		AgentID:             in.AgentID,
		WorkflowStage:       in.WorkflowStage,
		RequestID:           in.RequestID,
		RecoveryAttempts:    []Attempt{},
		Severity:            best.Severity,
		RecommendedStrategy: best.Strategy,
		Confidence:          bestScore,
	}
	if best.Type == ErrorTokenLimit {
		ec.MaxContextSize = statedContextLimit(lower)
	}
	return ec
}

// DetectError runs detection on a Go error. Anthropic API errors
// contribute their HTTP status and request id; a context deadline counts
// as a 408 when no status is known.
func (d *Detector) DetectError(err error, in Input) *ErrorContext {
	if err == nil {
		return nil
	}
	in.Message = err.Error()

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if in.HTTPCode == 0 {
			in.HTTPCode = apiErr.StatusCode
		}
		if in.RequestID == "" && apiErr.Response != nil {
			in.RequestID = apiErr.Response.Header.Get("request-id")
		}
	}
	if in.HTTPCode == 0 && errors.Is(err, context.DeadlineExceeded) {
		in.HTTPCode = http.StatusRequestTimeout
	}
	return d.Detect(in)
}

// Pattern returns the taxonomy entry for t.
func (d *Detector) Pattern(t ErrorType) (ErrorPattern, bool) {
	d.pmu.RLock()
	defer d.pmu.RUnlock()
	for _, p := range d.patterns {
		if p.Type == t {
			return p.ErrorPattern, true
		}
	}
	return ErrorPattern{}, false
}

// ShouldRetry reports whether ec still has retry budget left.
func (d *Detector) ShouldRetry(ec *ErrorContext) bool {
	if ec == nil {
		return false
	}
	p, ok := d.Pattern(ec.ErrorType)
	if !ok {
		return false
	}
	return ec.RetryCount < p.MaxRetries
}

// BackoffDelay returns min(base × multiplier^retries, max wait) for ec,
// before jitter. Patterns without a max wait are not capped.
func (d *Detector) BackoffDelay(ec *ErrorContext) time.Duration {
	if ec == nil {
		return 0
	}
	p, ok := d.Pattern(ec.ErrorType)
	if !ok {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(ec.RetryCount)))
	if p.MaxWait > 0 && delay > p.MaxWait {
		delay = p.MaxWait
	}
	return delay
}

// Stats returns a snapshot of detection counts.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		Total:        d.stats.Total,
		Unrecognized: d.stats.Unrecognized,
		ByType:       make(map[ErrorType]int, len(d.stats.ByType)),
	}
	for k, v := range d.stats.ByType {
		s.ByType[k] = v
	}
	return s
}

func (p *compiledPattern) score(lower string, code int) float64 {
	var score float64
	if code != 0 {
		for _, c := range p.HTTPCodes {
			if c == code {
				score += httpCodeWeight
				break
			}
		}
	}
	if len(p.keywords) > 0 {
		hits := 0
		for _, k := range p.keywords {
			if strings.Contains(lower, k) {
				hits++
			}
		}
		score += keywordWeight * float64(hits) / float64(len(p.keywords))
	}
	if len(p.regexes) > 0 {
		hits := 0
		for _, re := range p.regexes {
			if re.MatchString(lower) {
				hits++
			}
		}
		score += regexWeight * float64(hits) / float64(len(p.regexes))
	}
	return math.Min(score, 1.0)
}

// statedContextLimit extracts the smallest "<n> tokens" figure from a
// token limit message and converts it to bytes.
func statedContextLimit(lower string) int {
	limit := 0
	for _, m := range tokenLimitRe.FindAllStringSubmatch(lower, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if limit == 0 || n < limit {
			limit = n
		}
	}
	return limit * bytesPerToken
}

// patternRecord is the exchange form of an ErrorPattern. Durations are
// seconds.
type patternRecord struct {
	ErrorType           ErrorType `json:"error_type"`
	Keywords            []string  `json:"keywords"`
	RegexPatterns       []string  `json:"regex_patterns"`
	HTTPCodes           []int     `json:"http_codes"`
	Severity            Severity  `json:"severity"`
	RecoveryStrategy    Strategy  `json:"recovery_strategy"`
	RetryCount          int       `json:"retry_count"`
	BackoffMultiplier   float64   `json:"backoff_multiplier"`
	MaxWaitTime         float64   `json:"max_wait_time"`
	ContextPreservation bool      `json:"context_preservation"`
}

// ExportPatterns encodes the custom patterns, keyed by error type.
// Built-in patterns are not exported.
func (d *Detector) ExportPatterns() ([]byte, error) {
	d.pmu.RLock()
	out := make(map[ErrorType]patternRecord, len(d.custom))
	for _, p := range d.patterns {
		if !d.custom[p.Type] {
			continue
		}
		out[p.Type] = patternRecord{
			ErrorType:           p.Type,
			Keywords:            p.Keywords,
			RegexPatterns:       p.Regexes,
			HTTPCodes:           p.HTTPCodes,
			Severity:            p.Severity,
			RecoveryStrategy:    p.Strategy,
			RetryCount:          p.MaxRetries,
			BackoffMultiplier:   p.BackoffMultiplier,
			MaxWaitTime:         p.MaxWait.Seconds(),
			ContextPreservation: p.PreserveContext,
		}
	}
	d.pmu.RUnlock()
	return json.MarshalIndent(out, "", "  ")
}

// ImportPatterns decodes patterns written by ExportPatterns and registers
// each as a custom pattern. Nothing is registered if any entry is invalid.
func (d *Detector) ImportPatterns(data []byte) error {
	var in map[string]patternRecord
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode error patterns: %w", err)
	}
	patterns := make([]ErrorPattern, 0, len(in))
	for name, r := range in {
		if r.ErrorType == "" {
			return fmt.Errorf("pattern %q: missing error_type", name)
		}
		if !r.RecoveryStrategy.Valid() {
			return fmt.Errorf("pattern %q: unknown recovery strategy %q", name, r.RecoveryStrategy)
		}
		patterns = append(patterns, ErrorPattern{
			Type:              r.ErrorType,
			Keywords:          r.Keywords,
			Regexes:           r.RegexPatterns,
			HTTPCodes:         r.HTTPCodes,
			Severity:          r.Severity,
			Strategy:          r.RecoveryStrategy,
			MaxRetries:        r.RetryCount,
			BaseDelay:         baseDelay,
			BackoffMultiplier: r.BackoffMultiplier,
			MaxWait:           time.Duration(r.MaxWaitTime * float64(time.Second)),
			PreserveContext:   r.ContextPreservation,
		})
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Type < patterns[j].Type })
	for _, p := range patterns {
		d.AddPattern(p)
	}
	return nil
}
