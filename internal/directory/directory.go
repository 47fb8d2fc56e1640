// Package directory is the read-only catalog of spaces and their applications.
package directory

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/keydesk/keydesk/internal/model"
)

// Common directory errors.
var (
	ErrSpaceNotFound       = errors.New("space not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrInvalidCatalog      = errors.New("invalid catalog")
)

//go:embed seed.yaml
var seedCatalog []byte

// Catalog resolves spaces and applications.
type Catalog interface {
	ListSpaces(ctx context.Context) ([]model.Space, error)
	SearchSpaces(ctx context.Context, query string) ([]model.Space, error)
	GetSpace(ctx context.Context, id string) (model.Space, error)
	ListApplications(ctx context.Context, spaceID string) ([]model.Application, error)
	GetApplication(ctx context.Context, id string) (model.Application, error)
}

type catalogFile struct {
	Spaces       []model.Space       `yaml:"spaces"`
	Applications []model.Application `yaml:"applications"`
}

// snapshot is an immutable, validated catalog.
type snapshot struct {
	spaces    []model.Space
	apps      []model.Application
	spaceByID map[string]int
	appByID   map[string]int
}

// YAMLCatalog is a Catalog loaded from YAML. It is safe for concurrent use
// and can be reloaded in place.
type YAMLCatalog struct {
	path string // empty for the embedded seed

	mu   sync.RWMutex
	snap *snapshot
}

var _ Catalog = (*YAMLCatalog)(nil)

// Load reads a catalog from path. An empty path loads the embedded seed.
func Load(path string) (*YAMLCatalog, error) {
	c := &YAMLCatalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*YAMLCatalog, error) {
	snap, err := parse(data)
	if err != nil {
		return nil, err
	}
	return &YAMLCatalog{snap: snap}, nil
}

// Path returns the backing file, or "" for the embedded seed.
func (c *YAMLCatalog) Path() string {
	return c.path
}

// Reload re-reads the backing file. On error the previous contents are kept.
func (c *YAMLCatalog) Reload() error {
	data := seedCatalog
	if c.path != "" {
		var err error
		data, err = os.ReadFile(c.path)
		if err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
	}

	snap, err := parse(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

func (c *YAMLCatalog) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// ListSpaces returns all spaces in catalog order.
func (c *YAMLCatalog) ListSpaces(context.Context) ([]model.Space, error) {
	s := c.current()
	out := make([]model.Space, len(s.spaces))
	copy(out, s.spaces)
	return out, nil
}

// SearchSpaces returns spaces whose name contains query, case-insensitively.
func (c *YAMLCatalog) SearchSpaces(_ context.Context, query string) ([]model.Space, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	s := c.current()

	out := make([]model.Space, 0, len(s.spaces))
	for _, sp := range s.spaces {
		if strings.Contains(strings.ToLower(sp.Name), q) {
			out = append(out, sp)
		}
	}
	return out, nil
}

// GetSpace returns a space by id.
func (c *YAMLCatalog) GetSpace(_ context.Context, id string) (model.Space, error) {
	s := c.current()
	i, ok := s.spaceByID[id]
	if !ok {
		return model.Space{}, fmt.Errorf("%w: %s", ErrSpaceNotFound, id)
	}
	return s.spaces[i], nil
}

// ListApplications returns the applications of a space in catalog order.
func (c *YAMLCatalog) ListApplications(_ context.Context, spaceID string) ([]model.Application, error) {
	s := c.current()
	if _, ok := s.spaceByID[spaceID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSpaceNotFound, spaceID)
	}

	out := make([]model.Application, 0)
	for _, app := range s.apps {
		if app.SpaceID == spaceID {
			out = append(out, app)
		}
	}
	return out, nil
}

// GetApplication returns an application by id.
func (c *YAMLCatalog) GetApplication(_ context.Context, id string) (model.Application, error) {
	s := c.current()
	i, ok := s.appByID[id]
	if !ok {
		return model.Application{}, fmt.Errorf("%w: %s", ErrApplicationNotFound, id)
	}
	return s.apps[i], nil
}

func parse(data []byte) (*snapshot, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	s := &snapshot{
		spaces:    f.Spaces,
		apps:      f.Applications,
		spaceByID: make(map[string]int, len(f.Spaces)),
		appByID:   make(map[string]int, len(f.Applications)),
	}

	for i, sp := range f.Spaces {
		if sp.ID == "" || sp.Name == "" {
			return nil, fmt.Errorf("%w: space %d needs id and name", ErrInvalidCatalog, i)
		}
		if _, dup := s.spaceByID[sp.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate space %s", ErrInvalidCatalog, sp.ID)
		}
		s.spaceByID[sp.ID] = i
	}

	for i, app := range f.Applications {
		if app.ID == "" || app.Name == "" {
			return nil, fmt.Errorf("%w: application %d needs id and name", ErrInvalidCatalog, i)
		}
		if _, dup := s.appByID[app.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate application %s", ErrInvalidCatalog, app.ID)
		}
		if _, ok := s.spaceByID[app.SpaceID]; !ok {
			return nil, fmt.Errorf("%w: application %s references unknown space %q", ErrInvalidCatalog, app.ID, app.SpaceID)
		}
		s.appByID[app.ID] = i
	}

	return s, nil
}
