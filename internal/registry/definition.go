package registry

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mbrel/internal/ir"
)

// Default labels and settings applied during normalization.
const (
	DefaultLabelFrom    = "Connects From"
	DefaultLabelTo      = "Connects To"
	DefaultEmptyMessage = "No connections"
	DefaultContext      = "side"
	DefaultPriority     = "low"
	DefaultPostType     = "post"
)

// Definition is a relationship as supplied by the caller, before
// normalization. It decodes from JSON, YAML and CUE (via JSON).
type Definition struct {
	ID         string    `json:"id" yaml:"id"`
	From       SideInput `json:"from" yaml:"from"`
	To         SideInput `json:"to" yaml:"to"`
	Reciprocal bool      `json:"reciprocal,omitempty" yaml:"reciprocal,omitempty"`
	LabelFrom  string    `json:"label_from,omitempty" yaml:"label_from,omitempty"`
	LabelTo    string    `json:"label_to,omitempty" yaml:"label_to,omitempty"`
}

// SideInput is one side of a Definition. A bare string decodes as the
// shorthand for a post side of that post type.
type SideInput struct {
	ObjectType   string       `json:"object_type,omitempty" yaml:"object_type,omitempty"`
	EmptyMessage string       `json:"empty_message,omitempty" yaml:"empty_message,omitempty"`
	MetaBox      MetaBoxInput `json:"meta_box,omitempty" yaml:"meta_box,omitempty"`
	Field        FieldInput   `json:"field,omitempty" yaml:"field,omitempty"`

	// Legacy top-level selectors, migrated into Field.
	PostType  string         `json:"post_type,omitempty" yaml:"post_type,omitempty"`
	Taxonomy  string         `json:"taxonomy,omitempty" yaml:"taxonomy,omitempty"`
	QueryArgs map[string]any `json:"query_args,omitempty" yaml:"query_args,omitempty"`
}

// MetaBoxInput is the meta box block of a SideInput.
type MetaBoxInput struct {
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Hidden   bool   `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Context  string `json:"context,omitempty" yaml:"context,omitempty"`
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`

	// Legacy keys, migrated to SideInput.EmptyMessage and Field.Name.
	EmptyMessage string `json:"empty_message,omitempty" yaml:"empty_message,omitempty"`
	FieldTitle   string `json:"field_title,omitempty" yaml:"field_title,omitempty"`
}

// FieldInput is the field block of a SideInput.
type FieldInput struct {
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	PostType  string         `json:"post_type,omitempty" yaml:"post_type,omitempty"`
	Taxonomy  string         `json:"taxonomy,omitempty" yaml:"taxonomy,omitempty"`
	QueryArgs map[string]any `json:"query_args,omitempty" yaml:"query_args,omitempty"`
}

// PostType returns the shorthand side for posts of the given post type.
func PostType(postType string) SideInput {
	return SideInput{Field: FieldInput{PostType: postType}}
}

// Taxonomy returns a term side for the given taxonomy.
func Taxonomy(taxonomy string) SideInput {
	return SideInput{ObjectType: string(ir.ObjectTerm), Taxonomy: taxonomy}
}

// Users returns a user side.
func Users() SideInput {
	return SideInput{ObjectType: string(ir.ObjectUser)}
}

// UnmarshalYAML accepts either a post type scalar or a mapping.
func (s *SideInput) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var postType string
		if err := value.Decode(&postType); err != nil {
			return err
		}
		*s = PostType(postType)
		return nil
	}
	type plain SideInput
	return value.Decode((*plain)(s))
}

// UnmarshalJSON accepts either a post type string or an object.
func (s *SideInput) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var postType string
		if err := json.Unmarshal(data, &postType); err != nil {
			return err
		}
		*s = PostType(postType)
		return nil
	}
	type plain SideInput
	return json.Unmarshal(data, (*plain)(s))
}

// NormalizeID returns the canonical form of a relationship id: trimmed
// and NFC-normalized.
func NormalizeID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// normalize expands a Definition into a full ir.Relationship.
func normalize(def Definition) ir.Relationship {
	labelFrom := def.LabelFrom
	if labelFrom == "" {
		labelFrom = DefaultLabelFrom
	}
	labelTo := def.LabelTo
	if labelTo == "" {
		labelTo = DefaultLabelTo
	}

	return ir.Relationship{
		ID:         NormalizeID(def.ID),
		From:       normalizeSide(def.From, labelFrom),
		To:         normalizeSide(def.To, labelTo),
		Reciprocal: def.Reciprocal,
		LabelFrom:  labelFrom,
		LabelTo:    labelTo,
	}
}

func normalizeSide(in SideInput, label string) ir.Side {
	side := ir.Side{
		ObjectType:   ir.ObjectType(strings.ToLower(in.ObjectType)),
		EmptyMessage: in.EmptyMessage,
		MetaBox: ir.MetaBox{
			Title:    in.MetaBox.Title,
			Hidden:   in.MetaBox.Hidden,
			Context:  in.MetaBox.Context,
			Priority: in.MetaBox.Priority,
		},
		Field: ir.Field{
			Name:      in.Field.Name,
			PostType:  in.Field.PostType,
			Taxonomy:  in.Field.Taxonomy,
			QueryArgs: maps.Clone(in.Field.QueryArgs),
		},
	}

	if side.ObjectType == "" {
		side.ObjectType = ir.ObjectPost
	}
	if side.EmptyMessage == "" {
		side.EmptyMessage = DefaultEmptyMessage
	}
	if side.MetaBox.Title == "" {
		side.MetaBox.Title = label
	}
	if side.MetaBox.Context == "" {
		side.MetaBox.Context = DefaultContext
	}
	if side.MetaBox.Priority == "" {
		side.MetaBox.Priority = DefaultPriority
	}

	migrateLegacy(in, &side)

	switch side.ObjectType {
	case ir.ObjectTerm:
		side.Field.Type = ir.FieldTypeTaxonomy
		side.Field.PostType = ""
	case ir.ObjectUser:
		side.Field.Type = ir.FieldTypeUser
		side.Field.PostType = ""
		side.Field.Taxonomy = ""
	default:
		side.Field.Type = ir.FieldTypePost
		side.Field.Taxonomy = ""
		if side.Field.PostType == "" {
			side.Field.PostType = DefaultPostType
		}
	}
	if side.Field.QueryArgs == nil {
		side.Field.QueryArgs = map[string]any{}
	}

	return side
}

// migrateLegacy moves settings from their old locations. Old keys win over
// defaults but not over values already given in the new location.
func migrateLegacy(in SideInput, side *ir.Side) {
	if in.MetaBox.EmptyMessage != "" && in.EmptyMessage == "" {
		side.EmptyMessage = in.MetaBox.EmptyMessage
	}
	if in.MetaBox.FieldTitle != "" && side.Field.Name == "" {
		side.Field.Name = in.MetaBox.FieldTitle
	}
	if in.PostType != "" && side.Field.PostType == "" {
		side.Field.PostType = in.PostType
	}
	if in.Taxonomy != "" && side.Field.Taxonomy == "" {
		side.Field.Taxonomy = in.Taxonomy
	}
	if len(in.QueryArgs) > 0 && len(side.Field.QueryArgs) == 0 {
		side.Field.QueryArgs = maps.Clone(in.QueryArgs)
	}
}

// String renders a definition for log output.
func (d Definition) String() string {
	return fmt.Sprintf("%s(%s -> %s)", d.ID, d.From.describe(), d.To.describe())
}

func (s SideInput) describe() string {
	ot := s.ObjectType
	if ot == "" {
		ot = string(ir.ObjectPost)
	}
	switch {
	case s.Field.PostType != "":
		return ot + ":" + s.Field.PostType
	case s.PostType != "":
		return ot + ":" + s.PostType
	case s.Field.Taxonomy != "":
		return ot + ":" + s.Field.Taxonomy
	case s.Taxonomy != "":
		return ot + ":" + s.Taxonomy
	}
	return ot
}
