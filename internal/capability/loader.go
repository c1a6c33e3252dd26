package capability

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/crew/internal/classify"
)

// catalogFile is the on-disk agent catalog layout.
type catalogFile struct {
	Agents []AgentCapability `yaml:"agents"`
}

// UnmarshalYAML fills unset fields with catalog defaults before decoding.
func (a *AgentCapability) UnmarshalYAML(node *yaml.Node) error {
	type plain AgentCapability
	p := plain{
		MaxComplexity:       classify.ComplexityComplex,
		PreferredComplexity: classify.ComplexityModerate,
		SuccessRate:         0.95,
		TimeMultiplier:      1.0,
	}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*a = AgentCapability(p)
	return nil
}

// LoadCatalog reads an agent catalog from a YAML file.
func LoadCatalog(path string) ([]AgentCapability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML agent catalog.
func ParseCatalog(data []byte) ([]AgentCapability, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("parse catalog: no agents defined")
	}

	seen := make(map[string]bool, len(file.Agents))
	for i, a := range file.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("parse catalog: agent %d has no id", i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("parse catalog: duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if a.SuccessRate < 0 || a.SuccessRate > 1 {
			return nil, fmt.Errorf("parse catalog: agent %q success_rate %v out of range", a.ID, a.SuccessRate)
		}
		if !a.MaxComplexity.Valid() || !a.PreferredComplexity.Valid() {
			return nil, fmt.Errorf("parse catalog: agent %q has invalid complexity", a.ID)
		}
	}
	return file.Agents, nil
}

// Watcher reloads a Matrix whenever its catalog file changes on disk.
// A catalog that fails to parse is logged and the previous one is kept.
type Watcher struct {
	matrix *Matrix
	path   string

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	reloads  int
	onReload func(error)
}

// NewWatcher starts watching path and installs each successfully parsed
// version into m. onReload, if non-nil, is called after every reload attempt.
func NewWatcher(m *Matrix, path string, onReload func(error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create catalog watcher: %w", err)
	}
	// Watch the directory so editors that replace the file by rename are seen.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch catalog dir: %w", err)
	}

	w := &Watcher{
		matrix:   m,
		path:     filepath.Clean(path),
		watcher:  fw,
		done:     make(chan struct{}),
		onReload: onReload,
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[catalog] watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.reloads++
	cb := w.onReload
	w.mu.Unlock()

	agents, err := LoadCatalog(w.path)
	if err != nil {
		log.Printf("[catalog] keeping previous catalog: %v", err)
	} else {
		w.matrix.Replace(agents)
		log.Printf("[catalog] reloaded %d agents from %s", len(agents), w.path)
	}
	if cb != nil {
		cb(err)
	}
}

// Reloads returns how many reload attempts have run.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
