package capability

import (
	c "github.com/ShayCichocki/crew/internal/classify"
)

// DefaultCatalog returns the built-in agent catalog. Each call returns a
// fresh slice the caller may modify.
func DefaultCatalog() []AgentCapability {
	agents := []AgentCapability{
		{
			ID:                  "python-pro",
			Description:         "Expert Python developer with deep expertise",
			PrimaryCategories:   []c.Category{c.CategoryDevelopment, c.CategoryDebugging},
			SecondaryCategories: []c.Category{c.CategoryTesting, c.CategoryRefactoring},
			Languages:           []c.Language{c.LanguagePython},
			Frameworks:          []c.Framework{c.FrameworkDjango, c.FrameworkFlask, c.FrameworkFastAPI, c.FrameworkPandas, c.FrameworkNumPy},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanTest:             true, CanDebug: true, CanRefactor: true, CanDocument: true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "frontend-developer",
			Description:         "Expert UI engineer for frontend solutions",
			PrimaryCategories:   []c.Category{c.CategoryUIUX, c.CategoryDevelopment},
			SecondaryCategories: []c.Category{c.CategoryTesting, c.CategoryPerformance},
			Languages:           []c.Language{c.LanguageJavaScript, c.LanguageTypeScript, c.LanguageHTMLCSS},
			Frameworks:          []c.Framework{c.FrameworkReact, c.FrameworkVue, c.FrameworkAngular},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanTest:             true, CanDocument: true,
			MCPServers:          []string{"memory", "ref", "shadcn_ui", "playwright", "puppeteer"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "typescript-pro",
			Description:         "Expert TypeScript developer",
			PrimaryCategories:   []c.Category{c.CategoryDevelopment},
			SecondaryCategories: []c.Category{c.CategoryAPIDesign, c.CategoryTesting},
			Languages:           []c.Language{c.LanguageTypeScript, c.LanguageJavaScript},
			Frameworks:          []c.Framework{c.FrameworkNextJS, c.FrameworkExpress},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanTest:             true, CanRefactor: true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking", "exa"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "nextjs-developer",
			Description:         "Expert Next.js developer",
			PrimaryCategories:   []c.Category{c.CategoryDevelopment, c.CategoryUIUX},
			SecondaryCategories: []c.Category{c.CategoryPerformance, c.CategoryDeployment},
			Languages:           []c.Language{c.LanguageTypeScript, c.LanguageJavaScript},
			Frameworks:          []c.Framework{c.FrameworkNextJS, c.FrameworkReact},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanTest:             true, CanDeploy: true,
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "data-analyst",
			Description:         "Expert data analyst",
			PrimaryCategories:   []c.Category{c.CategoryDataAnalysis},
			SecondaryCategories: []c.Category{c.CategoryResearch, c.CategoryDocumentation},
			Languages:           []c.Language{c.LanguagePython, c.LanguageSQL},
			Frameworks:          []c.Framework{c.FrameworkPandas, c.FrameworkNumPy},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanDocument:         true, CanResearch: true,
			MCPServers:          []string{"memory", "exa", "sequential_thinking", "ref"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "data-scientist",
			Description:         "Expert data scientist",
			PrimaryCategories:   []c.Category{c.CategoryDataAnalysis},
			SecondaryCategories: []c.Category{c.CategoryResearch, c.CategoryPerformance},
			Languages:           []c.Language{c.LanguagePython},
			Frameworks:          []c.Framework{c.FrameworkTensorFlow, c.FrameworkPyTorch, c.FrameworkPandas},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanResearch:         true,
			MCPServers:          []string{"memory", "exa", "sequential_thinking", "ref"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "debugger",
			Description:         "Expert debugger for complex issues",
			PrimaryCategories:   []c.Category{c.CategoryDebugging},
			SecondaryCategories: []c.Category{c.CategoryTesting, c.CategoryPerformance},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanDebug:            true, CanTest: true,
			MCPServers:          []string{"memory", "sequential_thinking", "ref"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "code-reviewer",
			Description:         "Expert code reviewer",
			PrimaryCategories:   []c.Category{c.CategoryReview},
			SecondaryCategories: []c.Category{c.CategorySecurity, c.CategoryRefactoring},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanReview:           true, CanRefactor: true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "architect-reviewer",
			Description:         "Expert architecture reviewer",
			PrimaryCategories:   []c.Category{c.CategoryArchitecture, c.CategoryReview},
			SecondaryCategories: []c.Category{c.CategoryPerformance, c.CategorySecurity},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanReview:           true, CanArchitect: true,
			MCPServers:          []string{"memory", "sequential_thinking", "ref", "exa"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "test-automator",
			Description:         "Expert test automation engineer",
			PrimaryCategories:   []c.Category{c.CategoryTesting},
			SecondaryCategories: []c.Category{c.CategoryAutomation, c.CategoryIntegration},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanTest:             true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking", "exa"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "qa-expert",
			Description:         "Expert QA engineer",
			PrimaryCategories:   []c.Category{c.CategoryTesting, c.CategoryReview},
			SecondaryCategories: []c.Category{c.CategoryDocumentation},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanTest:             true, CanReview: true, CanDocument: true,
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "deployment-engineer",
			Description:         "Expert deployment engineer",
			PrimaryCategories:   []c.Category{c.CategoryDeployment, c.CategoryInfrastructure},
			SecondaryCategories: []c.Category{c.CategoryMonitoring, c.CategoryAutomation},
			Languages:           []c.Language{c.LanguageShell, c.LanguageYAML},
			Frameworks:          []c.Framework{c.FrameworkDocker, c.FrameworkKubernetes, c.FrameworkAWS},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanDeploy:           true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking", "exa"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "api-designer",
			Description:         "API architecture expert",
			PrimaryCategories:   []c.Category{c.CategoryAPIDesign},
			SecondaryCategories: []c.Category{c.CategoryDocumentation, c.CategoryArchitecture},
			Frameworks:          []c.Framework{c.FrameworkREST, c.FrameworkGraphQL},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanDocument:         true, CanArchitect: true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking", "exa"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "websocket-engineer",
			Description:         "Real-time communication specialist",
			PrimaryCategories:   []c.Category{c.CategoryDevelopment},
			SecondaryCategories: []c.Category{c.CategoryPerformance, c.CategoryIntegration},
			Languages:           []c.Language{c.LanguageJavaScript, c.LanguageTypeScript},
			Frameworks:          []c.Framework{c.FrameworkWebSocket},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			MCPServers:          []string{"memory", "ref", "sequential_thinking"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "postgres-pro",
			Description:         "Expert PostgreSQL specialist",
			PrimaryCategories:   []c.Category{c.CategoryDatabase},
			SecondaryCategories: []c.Category{c.CategoryPerformance, c.CategoryMaintenance},
			Languages:           []c.Language{c.LanguageSQL},
			Frameworks:          []c.Framework{c.FrameworkPostgres},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanDebug:            true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "data-engineer",
			Description:         "Expert data engineer",
			PrimaryCategories:   []c.Category{c.CategoryDataAnalysis, c.CategoryInfrastructure},
			SecondaryCategories: []c.Category{c.CategoryPerformance, c.CategoryAutomation},
			Languages:           []c.Language{c.LanguagePython, c.LanguageSQL},
			Frameworks:          []c.Framework{c.FrameworkPandas, c.FrameworkDocker},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			MCPServers:          []string{"memory", "ref", "sequential_thinking", "exa"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "research-analyst",
			Description:         "Expert research analyst",
			PrimaryCategories:   []c.Category{c.CategoryResearch},
			SecondaryCategories: []c.Category{c.CategoryDocumentation, c.CategoryDataAnalysis},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanResearch:         true, CanDocument: true,
			MCPServers:          []string{"memory", "exa", "sequential_thinking", "ref"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "data-researcher",
			Description:         "Expert data researcher",
			PrimaryCategories:   []c.Category{c.CategoryResearch, c.CategoryDataAnalysis},
			SecondaryCategories: []c.Category{c.CategoryDocumentation},
			Languages:           []c.Language{c.LanguagePython},
			Frameworks:          []c.Framework{c.FrameworkPandas},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanResearch:         true,
			MCPServers:          []string{"memory", "exa", "sequential_thinking", "ref"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "search-specialist",
			Description:         "Expert search specialist",
			PrimaryCategories:   []c.Category{c.CategoryResearch},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanResearch:         true,
			MCPServers:          []string{"memory", "exa", "ref", "sequential_thinking"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "refactoring-specialist",
			Description:         "Expert refactoring specialist",
			PrimaryCategories:   []c.Category{c.CategoryRefactoring},
			SecondaryCategories: []c.Category{c.CategoryPerformance, c.CategoryReview},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanRefactor:         true, CanReview: true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "tooling-engineer",
			Description:         "Expert tooling engineer",
			PrimaryCategories:   []c.Category{c.CategoryAutomation, c.CategoryDevelopment},
			SecondaryCategories: []c.Category{c.CategoryIntegration},
			Languages:           []c.Language{c.LanguagePython, c.LanguageJavaScript},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			MCPServers:          []string{"memory", "ref", "sequential_thinking", "exa"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "fintech-engineer",
			Description:         "Expert fintech engineer",
			PrimaryCategories:   []c.Category{c.CategoryDevelopment, c.CategorySecurity},
			SecondaryCategories: []c.Category{c.CategoryIntegration, c.CategoryPerformance},
			Languages:           []c.Language{c.LanguagePython, c.LanguageJava},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			MCPServers:          []string{"memory", "ref", "sequential_thinking"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "quant-analyst",
			Description:         "Expert quantitative analyst",
			PrimaryCategories:   []c.Category{c.CategoryDataAnalysis},
			SecondaryCategories: []c.Category{c.CategoryResearch, c.CategoryPerformance},
			Languages:           []c.Language{c.LanguagePython},
			Frameworks:          []c.Framework{c.FrameworkPandas, c.FrameworkNumPy},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanResearch:         true,
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "product-manager",
			Description:         "Expert product manager",
			PrimaryCategories:   []c.Category{c.CategoryDocumentation},
			SecondaryCategories: []c.Category{c.CategoryResearch},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanDocument:         true, CanResearch: true,
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "ux-researcher",
			Description:         "Expert UX researcher",
			PrimaryCategories:   []c.Category{c.CategoryUIUX, c.CategoryResearch},
			SecondaryCategories: []c.Category{c.CategoryDocumentation},
			MaxComplexity:       c.ComplexityComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanResearch:         true, CanDocument: true,
			MCPServers:          []string{"memory", "exa", "sequential_thinking", "shadcn_ui"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "ai-engineer",
			Description:         "Expert AI engineer",
			PrimaryCategories:   []c.Category{c.CategoryDevelopment, c.CategoryDataAnalysis},
			SecondaryCategories: []c.Category{c.CategoryResearch, c.CategoryPerformance},
			Languages:           []c.Language{c.LanguagePython},
			Frameworks:          []c.Framework{c.FrameworkTensorFlow, c.FrameworkPyTorch},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanResearch:         true,
			MCPServers:          []string{"memory", "exa", "sequential_thinking", "ref"},
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "futures-tick-data-specialist",
			Description:         "Expert in Level 1 & Level 2 futures tick data",
			PrimaryCategories:   []c.Category{c.CategoryDataAnalysis},
			SecondaryCategories: []c.Category{c.CategoryPerformance, c.CategoryResearch},
			Languages:           []c.Language{c.LanguagePython},
			Frameworks:          []c.Framework{c.FrameworkPandas, c.FrameworkNumPy},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityModerate,
			CanResearch:         true,
			SuccessRate:         0.95, TimeMultiplier: 1.0,
		},
		{
			ID:                  "rust-engineer",
			Description:         "Expert Rust developer specializing in systems programming",
			PrimaryCategories:   []c.Category{c.CategoryDevelopment},
			SecondaryCategories: []c.Category{c.CategoryPerformance, c.CategorySecurity, c.CategoryDebugging, c.CategoryRefactoring},
			Languages:           []c.Language{c.LanguageRust},
			MaxComplexity:       c.ComplexityVeryComplex,
			PreferredComplexity: c.ComplexityComplex,
			CanTest:             true, CanDebug: true, CanRefactor: true, CanDocument: true, CanArchitect: true,
			MCPServers:          []string{"memory", "ref", "sequential_thinking"},
			SuccessRate:         0.98, TimeMultiplier: 1.0,
			WorksWellWith:       []string{"python-pro", "debugger", "frontend-developer", "typescript-pro"},
		},
	}
	linkGroups(agents)
	return agents
}

// collaborationGroups are agents of one specialty that work well together.
var collaborationGroups = [][]string{
	{"python-pro", "data-analyst", "data-scientist", "data-engineer", "ai-engineer"},
	{"frontend-developer", "typescript-pro", "nextjs-developer", "ux-researcher"},
}

// testersPairWith lists the developers the testing agents complement.
var testersPairWith = map[string][]string{
	"test-automator": {"python-pro", "frontend-developer", "typescript-pro"},
	"qa-expert":      {"python-pro", "frontend-developer", "typescript-pro"},
}

// universalReviewers work well with every agent in the catalog.
var universalReviewers = []string{"code-reviewer", "architect-reviewer"}

// linkGroups fills WorksWellWith for the built-in catalog.
func linkGroups(agents []AgentCapability) {
	index := make(map[string]int, len(agents))
	for i := range agents {
		index[agents[i].ID] = i
	}

	for _, group := range collaborationGroups {
		for _, id := range group {
			i, ok := index[id]
			if !ok {
				continue
			}
			for _, other := range group {
				if other != id {
					agents[i].WorksWellWith = append(agents[i].WorksWellWith, other)
				}
			}
		}
	}
	for id, partners := range testersPairWith {
		if i, ok := index[id]; ok {
			agents[i].WorksWellWith = append(agents[i].WorksWellWith, partners...)
		}
	}

	all := make([]string, len(agents))
	for i := range agents {
		all[i] = agents[i].ID
	}
	for _, id := range universalReviewers {
		if i, ok := index[id]; ok {
			agents[i].WorksWellWith = append([]string(nil), all...)
		}
	}
}
