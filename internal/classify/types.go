// Package classify extracts structured features from free-text task descriptions.
package classify

// Category is a broad kind of work a task belongs to.
type Category string

const (
	CategoryDevelopment    Category = "development"
	CategoryTesting        Category = "testing"
	CategoryDebugging      Category = "debugging"
	CategoryRefactoring    Category = "refactoring"
	CategoryArchitecture   Category = "architecture"
	CategoryDataAnalysis   Category = "data_analysis"
	CategoryResearch       Category = "research"
	CategoryDeployment     Category = "deployment"
	CategoryDocumentation  Category = "documentation"
	CategorySecurity       Category = "security"
	CategoryPerformance    Category = "performance"
	CategoryUIUX           Category = "ui_ux"
	CategoryAPIDesign      Category = "api_design"
	CategoryDatabase       Category = "database"
	CategoryInfrastructure Category = "infrastructure"
	CategoryReview         Category = "review"
	CategoryAutomation     Category = "automation"
	CategoryIntegration    Category = "integration"
	CategoryMonitoring     Category = "monitoring"
	CategoryMaintenance    Category = "maintenance"
)

// Complexity is an ordinal difficulty level. Values compare numerically.
type Complexity int

const (
	ComplexityTrivial Complexity = iota
	ComplexitySimple
	ComplexityModerate
	ComplexityComplex
	ComplexityVeryComplex
)

// String returns the snake_case tag used in serialized output.
func (c Complexity) String() string {
	switch c {
	case ComplexityTrivial:
		return "trivial"
	case ComplexitySimple:
		return "simple"
	case ComplexityModerate:
		return "moderate"
	case ComplexityComplex:
		return "complex"
	case ComplexityVeryComplex:
		return "very_complex"
	default:
		return "unknown"
	}
}

// Valid returns true if c is one of the five known levels.
func (c Complexity) Valid() bool {
	return c >= ComplexityTrivial && c <= ComplexityVeryComplex
}

// MarshalText encodes the complexity as its string tag.
func (c Complexity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a string tag. Unknown tags decode to moderate.
func (c *Complexity) UnmarshalText(b []byte) error {
	*c = ParseComplexity(string(b))
	return nil
}

// ParseComplexity converts a string tag to a Complexity.
// Unknown values map to ComplexityModerate.
func ParseComplexity(s string) Complexity {
	switch s {
	case "trivial":
		return ComplexityTrivial
	case "simple":
		return ComplexitySimple
	case "moderate":
		return ComplexityModerate
	case "complex":
		return ComplexityComplex
	case "very_complex":
		return ComplexityVeryComplex
	default:
		return ComplexityModerate
	}
}

// Language is a programming language detected in a task.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJava       Language = "java"
	LanguageGo         Language = "go"
	LanguageRust       Language = "rust"
	LanguageCPP        Language = "cpp"
	LanguageCSharp     Language = "csharp"
	LanguageRuby       Language = "ruby"
	LanguagePHP        Language = "php"
	LanguageSwift      Language = "swift"
	LanguageKotlin     Language = "kotlin"
	LanguageSQL        Language = "sql"
	LanguageShell      Language = "shell"
	LanguageHTMLCSS    Language = "html_css"
	LanguageYAML       Language = "yaml"
	LanguageJSON       Language = "json"
	LanguageMarkdown   Language = "markdown"
	LanguageUnknown    Language = "unknown"
)

// Framework is a framework, platform or datastore detected in a task.
type Framework string

const (
	FrameworkReact      Framework = "react"
	FrameworkNextJS     Framework = "nextjs"
	FrameworkVue        Framework = "vue"
	FrameworkAngular    Framework = "angular"
	FrameworkDjango     Framework = "django"
	FrameworkFlask      Framework = "flask"
	FrameworkFastAPI    Framework = "fastapi"
	FrameworkExpress    Framework = "express"
	FrameworkSpring     Framework = "spring"
	FrameworkRails      Framework = "rails"
	FrameworkLaravel    Framework = "laravel"
	FrameworkTensorFlow Framework = "tensorflow"
	FrameworkPyTorch    Framework = "pytorch"
	FrameworkPandas     Framework = "pandas"
	FrameworkNumPy      Framework = "numpy"
	FrameworkDocker     Framework = "docker"
	FrameworkKubernetes Framework = "kubernetes"
	FrameworkAWS        Framework = "aws"
	FrameworkGCP        Framework = "gcp"
	FrameworkAzure      Framework = "azure"
	FrameworkPostgres   Framework = "postgres"
	FrameworkMongoDB    Framework = "mongodb"
	FrameworkRedis      Framework = "redis"
	FrameworkGraphQL    Framework = "graphql"
	FrameworkREST       Framework = "rest"
	FrameworkWebSocket  Framework = "websocket"
)

// TaskFeatures holds the signals extracted from one task description.
// A value is built once per classification and never mutated afterward.
type TaskFeatures struct {
	// Categories are ordered by table definition; the first is the primary one.
	Categories []Category  `json:"categories"`
	Complexity Complexity  `json:"complexity"`
	Languages  []Language  `json:"languages"`
	Frameworks []Framework `json:"frameworks"`
	// Keywords are the top content words ranked by frequency.
	Keywords     []string `json:"keywords"`
	FilePatterns []string `json:"file_patterns"`

	RequiresTesting       bool `json:"requires_testing"`
	RequiresReview        bool `json:"requires_review"`
	RequiresDeployment    bool `json:"requires_deployment"`
	RequiresDocumentation bool `json:"requires_documentation"`
	IsBugFix              bool `json:"is_bug_fix"`
	IsNewFeature          bool `json:"is_new_feature"`
	IsRefactor            bool `json:"is_refactor"`
	IsResearch            bool `json:"is_research"`

	EstimatedFiles       int  `json:"estimated_files"`
	HasDatabase          bool `json:"has_database"`
	HasAPI               bool `json:"has_api"`
	HasUI                bool `json:"has_ui"`
	SecurityImplications bool `json:"security_implications"`

	// Confidence is in [0,1].
	Confidence float64 `json:"confidence"`
}

// PrimaryCategory returns the first extracted category.
func (f TaskFeatures) PrimaryCategory() Category {
	if len(f.Categories) == 0 {
		return CategoryDevelopment
	}
	return f.Categories[0]
}

// HasCategory reports whether c was extracted.
func (f TaskFeatures) HasCategory(c Category) bool {
	for _, got := range f.Categories {
		if got == c {
			return true
		}
	}
	return false
}

// TopCategories returns at most n categories in extraction order.
func (f TaskFeatures) TopCategories(n int) []Category {
	if n > len(f.Categories) {
		n = len(f.Categories)
	}
	return f.Categories[:n]
}

// Context carries optional caller-supplied hints for classification.
type Context struct {
	// Files are paths the task is expected to touch.
	Files []string `json:"files,omitempty"`
}
