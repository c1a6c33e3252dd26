package checkpoint

import "strings"

var highRiskTools = []string{"Bash", "Write", "Edit", "MultiEdit", "git", "npm", "pip", "docker"}

// highRiskKeywords are matched as substrings, so "rm" also fires on "format".
var highRiskKeywords = []string{"delete", "remove", "rm", "drop", "truncate", "install", "upgrade", "deploy", "production"}

var productionWords = []string{"production", "prod", "live"}

var sensitivePaths = []string{"/etc/", "/usr/", "/var/", "~/"}

// IsHighRiskTool reports whether tool is on the high-risk list. Tool
// names are case-sensitive.
func IsHighRiskTool(tool string) bool {
	for _, t := range highRiskTools {
		if t == tool {
			return true
		}
	}
	return false
}

// AssessRisk scores an operation: +2 for a high-risk tool, +1 per high-risk
// keyword, +1 for a sensitive path, +2 for a production mention.
func AssessRisk(op *Operation) Risk {
	if op == nil {
		return RiskLow
	}
	score := 0
	if IsHighRiskTool(op.Tool) {
		score += 2
	}

	text := strings.ToLower(op.Text)
	for _, k := range highRiskKeywords {
		if strings.Contains(text, k) {
			score++
		}
	}
	for _, p := range sensitivePaths {
		if strings.Contains(op.FilePath, p) {
			score++
			break
		}
	}
	for _, w := range productionWords {
		if strings.Contains(text, w) {
			score += 2
			break
		}
	}

	switch {
	case score >= 4:
		return RiskHigh
	case score >= 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

func hasHighRiskKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range highRiskKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
