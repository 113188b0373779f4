package cv

import (
	"fmt"
	"image"
	"sync"
)

// Store holds every template, grouped by object identity in insertion order.
// Templates are append-only; loads take the write lock, matching the read lock.
type Store struct {
	config     *MatchConfig
	modalities []Modality

	order     []string
	templates map[string][]*Template

	mu sync.RWMutex
}

// NewStore creates an empty template store
func NewStore(config *MatchConfig) (*Store, error) {
	if config == nil {
		config = DefaultMatchConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.clone()
	return &Store{
		config:     config,
		modalities: config.Modalities(),
		templates:  make(map[string][]*Template),
	}, nil
}

// Config returns a copy of the configuration templates were built with
func (s *Store) Config() *MatchConfig {
	return s.config.clone()
}

// PyramidLevels returns the number of levels every template carries
func (s *Store) PyramidLevels() int {
	return len(s.config.SpreadT)
}

// AddTemplate builds a template from frame restricted to mask and appends it
// to objectID, returning its index
func (s *Store) AddTemplate(frame Frame, mask *image.Gray, objectID string) (int, error) {
	first, err := s.AddTemplates(objectID, []TemplateSource{{Frame: frame, Mask: mask}})
	if err != nil {
		return -1, err
	}
	return first, nil
}

// AddTemplates builds every source and appends them to objectID in order.
// Either all templates are added or none are. Returns the index of the first.
func (s *Store) AddTemplates(objectID string, sources []TemplateSource) (int, error) {
	built, err := s.build(objectID, sources)
	if err != nil {
		return -1, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(objectID, built), nil
}

// build extracts every template outside the lock
func (s *Store) build(objectID string, sources []TemplateSource) ([]*Template, error) {
	built := make([]*Template, len(sources))
	for i, src := range sources {
		tmpl, err := buildTemplate(src, s.modalities, s.PyramidLevels())
		if err != nil {
			return nil, fmt.Errorf("template %d of %q: %w", i, objectID, err)
		}
		tmpl.ObjectID = objectID
		built[i] = tmpl
	}
	return built, nil
}

// commit appends built templates and numbers them. Caller holds the write lock.
func (s *Store) commit(objectID string, built []*Template) int {
	if len(built) == 0 {
		return len(s.templates[objectID])
	}
	existing, ok := s.templates[objectID]
	if !ok {
		s.order = append(s.order, objectID)
	}
	first := len(existing)
	for i, tmpl := range built {
		tmpl.Index = first + i
	}
	s.templates[objectID] = append(existing, built...)
	return first
}

// AddObject is AddTemplates for an identity that must not exist yet. It
// returns the index assigned to every source.
func (s *Store) AddObject(objectID string, sources []TemplateSource) ([]int, error) {
	built, err := s.build(objectID, sources)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[objectID]; ok {
		return nil, fmt.Errorf("%w: %q", ErrObjectExists, objectID)
	}
	first := s.commit(objectID, built)
	indices := make([]int, len(built))
	for i := range indices {
		indices[i] = first + i
	}
	return indices, nil
}

// Template returns one template by identity and index
func (s *Store) Template(objectID string, index int) (*Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.templates[objectID]
	if index < 0 || index >= len(list) {
		return nil, false
	}
	return list[index], true
}

// Templates returns a copy of the template list for objectID
func (s *Store) Templates(objectID string) []*Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Template(nil), s.templates[objectID]...)
}

// ObjectIDs returns the known identities in insertion order
func (s *Store) ObjectIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...)
}

// Has reports whether objectID has at least one template
func (s *Store) Has(objectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.templates[objectID]) > 0
}

// NumObjects returns the number of identities
func (s *Store) NumObjects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// Count returns the total number of templates
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, list := range s.templates {
		n += len(list)
	}
	return n
}

// snapshot flattens the store in matching order. Caller holds the read lock.
func (s *Store) snapshot() []*Template {
	var all []*Template
	for _, id := range s.order {
		all = append(all, s.templates[id]...)
	}
	return all
}
