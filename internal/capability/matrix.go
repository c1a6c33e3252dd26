package capability

import (
	"sync"

	"github.com/ShayCichocki/crew/internal/classify"
)

// Matrix is the registry of agent capabilities. Reads are safe for
// concurrent use; Replace swaps the whole catalog at once.
type Matrix struct {
	mu     sync.RWMutex
	agents []AgentCapability
	byID   map[string]int
}

// NewMatrix creates a registry from the given catalog. Entries with an empty
// or duplicate ID are skipped; the first occurrence wins.
func NewMatrix(agents []AgentCapability) *Matrix {
	m := &Matrix{}
	m.install(agents)
	return m
}

// NewDefaultMatrix creates a registry from the built-in catalog.
func NewDefaultMatrix() *Matrix {
	return NewMatrix(DefaultCatalog())
}

// Replace installs a new catalog, recomputing collaboration links.
func (m *Matrix) Replace(agents []AgentCapability) {
	m.install(agents)
}

func (m *Matrix) install(agents []AgentCapability) {
	list := make([]AgentCapability, 0, len(agents))
	byID := make(map[string]int, len(agents))
	for _, a := range agents {
		if a.ID == "" {
			continue
		}
		if _, dup := byID[a.ID]; dup {
			continue
		}
		byID[a.ID] = len(list)
		list = append(list, cloneAgent(a))
	}
	linkCollaborators(list)

	m.mu.Lock()
	m.agents = list
	m.byID = byID
	m.mu.Unlock()
}

// linkCollaborators adds every agent that shares a primary category to
// WorksWellWith, after any declared entries.
func linkCollaborators(agents []AgentCapability) {
	for i := range agents {
		seen := make(map[string]bool, len(agents[i].WorksWellWith))
		for _, id := range agents[i].WorksWellWith {
			seen[id] = true
		}
		for j := range agents {
			if i == j || seen[agents[j].ID] {
				continue
			}
			if sharesPrimary(&agents[i], &agents[j]) {
				seen[agents[j].ID] = true
				agents[i].WorksWellWith = append(agents[i].WorksWellWith, agents[j].ID)
			}
		}
	}
}

func sharesPrimary(a, b *AgentCapability) bool {
	for _, c := range a.PrimaryCategories {
		if b.HasPrimary(c) {
			return true
		}
	}
	return false
}

func cloneAgent(a AgentCapability) AgentCapability {
	a.PrimaryCategories = append([]classify.Category(nil), a.PrimaryCategories...)
	a.SecondaryCategories = append([]classify.Category(nil), a.SecondaryCategories...)
	a.Languages = append([]classify.Language(nil), a.Languages...)
	a.Frameworks = append([]classify.Framework(nil), a.Frameworks...)
	a.MCPServers = append([]string(nil), a.MCPServers...)
	a.WorksWellWith = append([]string(nil), a.WorksWellWith...)
	a.ConflictsWith = append([]string(nil), a.ConflictsWith...)
	return a
}

// Get returns the agent with the given ID.
func (m *Matrix) Get(id string) (AgentCapability, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return AgentCapability{}, false
	}
	return cloneAgent(m.agents[i]), true
}

// All returns every agent in catalog order.
func (m *Matrix) All() []AgentCapability {
	return m.filter(func(*AgentCapability) bool { return true })
}

// IDs returns every agent ID in catalog order.
func (m *Matrix) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, len(m.agents))
	for i := range m.agents {
		ids[i] = m.agents[i].ID
	}
	return ids
}

// Len returns the number of registered agents.
func (m *Matrix) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// FilterByCategory returns agents listing c as a primary or secondary category.
func (m *Matrix) FilterByCategory(c classify.Category) []AgentCapability {
	return m.filter(func(a *AgentCapability) bool {
		return a.HasPrimary(c) || a.HasSecondary(c)
	})
}

// FilterByLanguage returns agents that declare l or declare no language.
func (m *Matrix) FilterByLanguage(l classify.Language) []AgentCapability {
	return m.filter(func(a *AgentCapability) bool {
		if len(a.Languages) == 0 {
			return true
		}
		for _, got := range a.Languages {
			if got == l {
				return true
			}
		}
		return false
	})
}

// FilterByFramework returns agents that declare fw or declare no framework.
func (m *Matrix) FilterByFramework(fw classify.Framework) []AgentCapability {
	return m.filter(func(a *AgentCapability) bool {
		if len(a.Frameworks) == 0 {
			return true
		}
		for _, got := range a.Frameworks {
			if got == fw {
				return true
			}
		}
		return false
	})
}

func (m *Matrix) filter(keep func(*AgentCapability) bool) []AgentCapability {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []AgentCapability
	for i := range m.agents {
		if keep(&m.agents[i]) {
			out = append(out, cloneAgent(m.agents[i]))
		}
	}
	return out
}
