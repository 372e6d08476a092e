package schema

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"queryforge/internal/models"
)

// Registry is the static table of pre-registered entities. It is the
// authoritative source for relation and filter validation; discovered
// entities are cached by the resolver, never written back here.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*models.EntityDescriptor
}

// NewRegistry creates a registry seeded with the built-in core entities.
func NewRegistry() *Registry {
	r := &Registry{entities: make(map[string]*models.EntityDescriptor)}
	for _, d := range builtinEntities() {
		r.entities[d.Name] = d
	}
	return r
}

// LoadFile merges entity descriptors from a YAML file into the registry.
// File entries override built-ins of the same name.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read registry file: %w", err)
	}

	var file struct {
		Entities []*models.EntityDescriptor `yaml:"entities"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse registry YAML: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range file.Entities {
		if d.Name == "" {
			continue
		}
		if d.Category == "" {
			d.Category = models.CategoryPreRegistered
		}
		if d.AccessMethod == "" {
			d.AccessMethod = models.AccessHTTPAPI
		}
		r.entities[d.Name] = d
	}
	return nil
}

// Get returns the descriptor for an entity, if registered.
func (r *Registry) Get(name string) (*models.EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entities[name]
	return d, ok
}

// IsCore reports whether the entity is pre-registered.
func (r *Registry) IsCore(name string) bool {
	d, ok := r.Get(name)
	return ok && d.Category == models.CategoryPreRegistered
}

// All returns every registered descriptor, sorted by name.
func (r *Registry) All() []*models.EntityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.EntityDescriptor, 0, len(r.entities))
	for _, d := range r.entities {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Register adds or replaces a descriptor. Used by tests and by callers
// that want to pin an entity without a registry file.
func (r *Registry) Register(d *models.EntityDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[d.Name] = d
}

// DescribeForDocs renders a descriptor as a short documentation blurb,
// suitable for similarity indexing and prompt inclusion.
func DescribeForDocs(d *models.EntityDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity %s is fetched via %s.", d.Name, d.AccessMethod)
	if len(d.Relations) > 0 {
		fmt.Fprintf(&b, " Relations: %s.", strings.Join(d.Relations, ", "))
	}
	if len(d.FilterableFields) > 0 {
		fmt.Fprintf(&b, " Filterable fields: %s.", strings.Join(d.FilterableFields, ", "))
	}
	for field, ref := range d.ResolvableRefs {
		fmt.Fprintf(&b, " The %s field is resolved by searching %s by %s.",
			field, ref.Entity, strings.Join(ref.SearchBy, ", "))
	}
	return b.String()
}

// builtinEntities is the default core entity set.
func builtinEntities() []*models.EntityDescriptor {
	return []*models.EntityDescriptor{
		{
			Name:             "customer",
			Category:         models.CategoryPreRegistered,
			AccessMethod:     models.AccessHTTPAPI,
			Relations:        []string{},
			FilterableFields: []string{"q", "email", "id"},
			APIPath:          "/admin/customers",
		},
		{
			Name:             "order",
			Category:         models.CategoryPreRegistered,
			AccessMethod:     models.AccessHTTPAPI,
			Relations:        []string{"items", "customer", "shipping_address"},
			FilterableFields: []string{"q", "id", "status", "customer_id", "created_at"},
			EnumFields: map[string][]string{
				"status": {"pending", "completed", "canceled"},
			},
			ResolvableRefs: map[string]models.CrossReference{
				"customer_id": {Entity: "customer", SearchBy: []string{"q"}},
			},
			APIPath: "/admin/orders",
		},
		{
			Name:             "product",
			Category:         models.CategoryPreRegistered,
			AccessMethod:     models.AccessHTTPAPI,
			Relations:        []string{"variants", "categories", "images"},
			FilterableFields: []string{"q", "id", "handle", "status", "category_id"},
			EnumFields: map[string][]string{
				"status": {"draft", "published", "rejected"},
			},
			ResolvableRefs: map[string]models.CrossReference{
				"category_id": {Entity: "category", SearchBy: []string{"q"}},
			},
			APIPath: "/admin/products",
		},
		{
			Name:             "category",
			Category:         models.CategoryPreRegistered,
			AccessMethod:     models.AccessGraph,
			Relations:        []string{"products", "parent_category"},
			FilterableFields: []string{"q", "id", "handle"},
		},
		{
			Name:             "design",
			Category:         models.CategoryPreRegistered,
			AccessMethod:     models.AccessInProcess,
			Relations:        []string{"specifications", "revisions"},
			FilterableFields: []string{"q", "id", "name", "status"},
			ResolvableRefs: map[string]models.CrossReference{
				"customer_id": {Entity: "customer", SearchBy: []string{"q"}},
			},
		},
	}
}
