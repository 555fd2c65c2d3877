package ir

// ObjectType is the kind of host object an edge endpoint refers to.
type ObjectType string

const (
	ObjectPost ObjectType = "post"
	ObjectTerm ObjectType = "term"
	ObjectUser ObjectType = "user"
)

// ObjectTypes lists every supported object type.
var ObjectTypes = []ObjectType{ObjectPost, ObjectTerm, ObjectUser}

// IDField returns the name of the host object's id field
// (ID for posts and users, term_id for terms).
func (t ObjectType) IDField() string {
	if t == ObjectTerm {
		return "term_id"
	}
	return "ID"
}

// Valid reports whether t is one of ObjectTypes.
func (t ObjectType) Valid() bool {
	for _, ot := range ObjectTypes {
		if t == ot {
			return true
		}
	}
	return false
}

// Field type names assigned to a side by object type.
const (
	FieldTypePost     = "post"
	FieldTypeTaxonomy = "taxonomy_advanced"
	FieldTypeUser     = "user"
)

// MetaBox holds the editing box settings for one side.
type MetaBox struct {
	Title    string `json:"title" yaml:"title"`
	Hidden   bool   `json:"hidden" yaml:"hidden"`
	Context  string `json:"context" yaml:"context" validate:"oneof=side normal advanced"`
	Priority string `json:"priority" yaml:"priority" validate:"oneof=high core default low"`
}

// Field holds the selector used to pick objects for one side.
type Field struct {
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type      string         `json:"type" yaml:"type" validate:"oneof=post taxonomy_advanced user"`
	PostType  string         `json:"post_type,omitempty" yaml:"post_type,omitempty" validate:"required_if=Type post"`
	Taxonomy  string         `json:"taxonomy,omitempty" yaml:"taxonomy,omitempty" validate:"required_if=Type taxonomy_advanced"`
	QueryArgs map[string]any `json:"query_args,omitempty" yaml:"query_args,omitempty"`
}

// Side is the normalized descriptor of one end of a relationship.
type Side struct {
	ObjectType   ObjectType `json:"object_type" yaml:"object_type" validate:"required,oneof=post term user"`
	EmptyMessage string     `json:"empty_message" yaml:"empty_message"`
	MetaBox      MetaBox    `json:"meta_box" yaml:"meta_box"`
	Field        Field      `json:"field" yaml:"field"`
}

// Selector returns the type-specific selector: the post type for post
// sides, the taxonomy for term sides, and "" for user sides.
func (s Side) Selector() string {
	switch s.ObjectType {
	case ObjectPost:
		return s.Field.PostType
	case ObjectTerm:
		return s.Field.Taxonomy
	default:
		return ""
	}
}

// Relationship is a registered, normalized relationship definition.
type Relationship struct {
	ID         string `json:"id" yaml:"id" validate:"required,max=44"`
	From       Side   `json:"from" yaml:"from"`
	To         Side   `json:"to" yaml:"to"`
	Reciprocal bool   `json:"reciprocal" yaml:"reciprocal"`
	LabelFrom  string `json:"label_from" yaml:"label_from"`
	LabelTo    string `json:"label_to" yaml:"label_to"`
}

// Side returns the descriptor for direction d.
func (r Relationship) Side(d Direction) Side {
	if d == To {
		return r.To
	}
	return r.From
}

// ObjectType returns the object type stored on side d.
func (r Relationship) ObjectType(d Direction) ObjectType {
	return r.Side(d).ObjectType
}

// HasObjectType reports whether either side stores objects of type t.
func (r Relationship) HasObjectType(t ObjectType) bool {
	return r.From.ObjectType == t || r.To.ObjectType == t
}

// Edge is one stored connection row.
type Edge struct {
	ID        int64  `json:"id" db:"ID"`
	From      int64  `json:"from" db:"from"`
	To        int64  `json:"to" db:"to"`
	Type      string `json:"type" db:"type"`
	OrderFrom int64  `json:"order_from" db:"order_from"`
	OrderTo   int64  `json:"order_to" db:"order_to"`
}

// End returns the object id stored on side d.
func (e Edge) End(d Direction) int64 {
	if d == To {
		return e.To
	}
	return e.From
}

// Order returns the position stored for side d.
func (e Edge) Order(d Direction) int64 {
	if d == To {
		return e.OrderTo
	}
	return e.OrderFrom
}

// SetEnd stores id on side d.
func (e *Edge) SetEnd(d Direction, id int64) {
	if d == To {
		e.To = id
		return
	}
	e.From = id
}

// SetOrder stores the position for side d.
func (e *Edge) SetOrder(d Direction, pos int64) {
	if d == To {
		e.OrderTo = pos
		return
	}
	e.OrderFrom = pos
}
