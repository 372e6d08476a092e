package models

// EntityCategory describes how an entity became known to the engine.
type EntityCategory string

const (
	CategoryPreRegistered EntityCategory = "pre-registered"
	CategoryDiscovered    EntityCategory = "discovered"
	CategoryUnknown       EntityCategory = "unknown"
)

// AccessMethod is the mechanism used to fetch an entity's data.
type AccessMethod string

const (
	AccessHTTPAPI   AccessMethod = "http-api"
	AccessInProcess AccessMethod = "in-process-service"
	AccessGraph     AccessMethod = "graph-traversal"
)

// CrossReference describes how a filter field on one entity resolves to
// another entity (e.g. order.customer_id -> customer searched by "q").
type CrossReference struct {
	Entity   string   `json:"entity" yaml:"entity"`
	SearchBy []string `json:"search_by" yaml:"search_by"`
}

// EntityDescriptor is everything the planner needs to know about one entity.
// Relations and FilterableFields are authoritative: a plan may only use
// what is listed here.
type EntityDescriptor struct {
	Name             string                    `json:"name" yaml:"name"`
	Category         EntityCategory            `json:"category" yaml:"category"`
	AccessMethod     AccessMethod              `json:"access_method" yaml:"access_method"`
	Relations        []string                  `json:"relations" yaml:"relations"`
	FilterableFields []string                  `json:"filterable_fields" yaml:"filterable_fields"`
	EnumFields       map[string][]string       `json:"enum_fields,omitempty" yaml:"enum_fields,omitempty"`
	ResolvableRefs   map[string]CrossReference `json:"resolvable_refs,omitempty" yaml:"resolvable_refs,omitempty"`
	APIPath          string                    `json:"api_path,omitempty" yaml:"api_path,omitempty"`
}

// HasRelation reports whether name is a registered relation of the entity.
func (d *EntityDescriptor) HasRelation(name string) bool {
	for _, r := range d.Relations {
		if r == name {
			return true
		}
	}
	return false
}

// UnknownDescriptor returns the descriptor used for entities that could not
// be resolved anywhere. It carries no relations and must never be queried.
func UnknownDescriptor(name string) *EntityDescriptor {
	return &EntityDescriptor{
		Name:         name,
		Category:     CategoryUnknown,
		AccessMethod: AccessHTTPAPI,
	}
}

// Classification is the classifier's verdict for one entity.
type Classification struct {
	Entity         string       `json:"entity"`
	IsCore         bool         `json:"is_core"`
	AccessMethod   AccessMethod `json:"access_method"`
	ValidRelations []string     `json:"valid_relations"`
}

// ResponseExpectation tells the executor how to unwrap an adapter response.
// Core HTTP entities come back as {<plural>: [...], count: N}; everything
// else is a bare list under "data".
type ResponseExpectation struct {
	DataKey  string `json:"data_key"`
	CountKey string `json:"count_key,omitempty"`
	Wrapped  bool   `json:"wrapped"`
}

// DiscoveryResult is the outcome of trying to recognize a free-text entity name.
type DiscoveryResult struct {
	IsValid    bool              `json:"is_valid"`
	Category   EntityCategory    `json:"category"`
	Descriptor *EntityDescriptor `json:"descriptor,omitempty"`
}
