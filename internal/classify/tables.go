package classify

// categoryRule maps a category to the substrings that select it.
// Matching is a plain substring test against the lowercased task text, so
// "test" also fires on "latest".
type categoryRule struct {
	category Category
	keywords []string
}

// categoryTable is evaluated in order; that order is the category priority
// consumers rely on when they take the "top N" categories. Infrastructure,
// automation, integration, monitoring and maintenance have no rule and are
// only ever reached through agent profiles.
var categoryTable = []categoryRule{
	{CategoryDevelopment, []string{"implement", "create", "build", "develop", "add", "feature", "functionality", "component", "module", "service", "endpoint"}},
	{CategoryTesting, []string{"test", "testing", "unit test", "integration test", "coverage", "spec", "pytest", "jest", "mocha", "assert", "verify"}},
	{CategoryDebugging, []string{"debug", "fix", "bug", "error", "issue", "problem", "crash", "exception", "failing", "broken", "not working", "investigate"}},
	{CategoryRefactoring, []string{"refactor", "optimize", "improve", "clean up", "reorganize", "restructure", "simplify", "extract", "rename", "move"}},
	{CategoryArchitecture, []string{"architecture", "design", "structure", "pattern", "system", "scalability", "microservice", "monolith", "distributed"}},
	{CategoryDataAnalysis, []string{"analyze", "data", "statistics", "metrics", "report", "visualization", "pandas", "numpy", "matplotlib", "dashboard", "insights"}},
	{CategoryResearch, []string{"research", "investigate", "explore", "find", "search", "understand", "learn", "study", "compare", "evaluate", "assess"}},
	{CategoryDeployment, []string{"deploy", "deployment", "release", "production", "staging", "ci/cd", "pipeline", "docker", "kubernetes", "aws", "azure"}},
	{CategoryDocumentation, []string{"document", "documentation", "readme", "docs", "comment", "explain", "describe", "guide", "tutorial", "api docs"}},
	{CategorySecurity, []string{"security", "vulnerability", "authentication", "authorization", "encryption", "csrf", "xss", "sql injection", "owasp", "audit"}},
	{CategoryPerformance, []string{"performance", "optimization", "speed", "faster", "slow", "latency", "throughput", "memory", "cpu", "profiling"}},
	{CategoryUIUX, []string{"ui", "ux", "interface", "design", "layout", "style", "css", "responsive", "accessibility", "user experience", "frontend"}},
	{CategoryAPIDesign, []string{"api", "endpoint", "rest", "graphql", "grpc", "swagger", "openapi", "schema", "route", "controller", "webhook"}},
	{CategoryDatabase, []string{"database", "sql", "query", "migration", "schema", "table", "index", "postgres", "mysql", "mongodb", "redis", "orm"}},
	{CategoryReview, []string{"review", "code review", "pr review", "check", "validate", "approve", "feedback", "suggestion", "quality", "standards"}},
}

// complexityTable is checked from trivial upward; the first bucket with a hit wins.
var complexityTable = []struct {
	level    Complexity
	keywords []string
}{
	{ComplexityTrivial, []string{"simple", "basic", "quick", "minor", "small", "typo"}},
	{ComplexitySimple, []string{"straightforward", "easy", "single", "one"}},
	{ComplexityModerate, []string{"several", "multiple", "some", "few"}},
	{ComplexityComplex, []string{"complex", "complicated", "many", "large", "significant"}},
	{ComplexityVeryComplex, []string{"entire", "system", "architecture", "redesign", "major"}},
}

// languageTable lists the substrings that identify a language. Every
// matching language is reported, in table order.
var languageTable = []struct {
	language Language
	keywords []string
}{
	{LanguagePython, []string{".py", "python", "django", "flask", "fastapi", "pandas", "numpy", "pip", "pytest", "pyenv", "poetry", "__init__", "def ", "import "}},
	{LanguageJavaScript, []string{".js", "javascript", "node", "npm", "express", "react", "vue", "angular", "webpack", "babel", "eslint", "const ", "let ", "var "}},
	{LanguageTypeScript, []string{".ts", ".tsx", "typescript", "interface", "type", "enum", "tsc", "tsconfig", "nextjs", ": string", ": number", ": boolean"}},
	{LanguageJava, []string{".java", "java", "spring", "maven", "gradle", "junit", "public class", "private", "protected", "extends", "implements"}},
	{LanguageGo, []string{".go", "golang", "go mod", "package main", "func", "goroutine", "channel", "defer", "fmt.", "gin", "echo"}},
	{LanguageRust, []string{".rs", "rust", "cargo", "rustc", "fn ", "let ", "mut ", "struct ", "impl ", "trait ", "enum ", "match ", "async fn", "await", "tokio", "serde", "clap", "&str", "unsafe ", "lifetime", "borrow"}},
	{LanguageSQL, []string{".sql", "select", "insert", "update", "delete", "join", "where", "group by", "order by", "create table", "alter"}},
}

// extensionLanguages maps context file extensions to languages.
var extensionLanguages = map[string]Language{
	".py":  LanguagePython,
	".js":  LanguageJavaScript,
	".jsx": LanguageJavaScript,
	".ts":  LanguageTypeScript,
	".tsx": LanguageTypeScript,
	".rs":  LanguageRust,
}

var frameworkTable = []struct {
	framework Framework
	keywords  []string
}{
	{FrameworkReact, []string{"react", "jsx", "usestate", "useeffect", "component"}},
	{FrameworkNextJS, []string{"next.js", "nextjs", "getserversideprops", "app router"}},
	{FrameworkDjango, []string{"django", "models.py", "views.py", "urls.py", "manage.py"}},
	{FrameworkFastAPI, []string{"fastapi", "pydantic", "uvicorn", "@app."}},
	{FrameworkDocker, []string{"docker", "dockerfile", "docker-compose", "container"}},
	{FrameworkKubernetes, []string{"kubernetes", "k8s", "kubectl", "pod", "deployment"}},
	{FrameworkPostgres, []string{"postgres", "postgresql", "psql", "pg_"}},
	{FrameworkMongoDB, []string{"mongodb", "mongoose", "collection", "document"}},
}

var (
	testingKeywords  = []string{"test", "testing", "coverage", "spec"}
	docKeywords      = []string{"document", "docs", "readme", "comment"}
	databaseKeywords = []string{"database", "sql", "query", "table"}
	uiKeywords       = []string{"ui", "frontend", "interface", "component"}
	securityKeywords = []string{"security", "auth", "permission", "sensitive"}
)

// directoryHints are reported as "<dir>*" file patterns when they appear verbatim.
var directoryHints = []string{"src/", "test/", "tests/", "lib/", "components/", "utils/"}

// stopwords are dropped before keyword ranking.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "be": true,
}

// complexityFileEstimate is the expected number of touched files per level.
var complexityFileEstimate = map[Complexity]int{
	ComplexityTrivial:     1,
	ComplexitySimple:      2,
	ComplexityModerate:    5,
	ComplexityComplex:     10,
	ComplexityVeryComplex: 20,
}
