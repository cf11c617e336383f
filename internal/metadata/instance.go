package metadata

import (
	"bytes"
	"encoding/json"
	"maps"
	"time"
)

// InstanceStatus is the lifecycle state of a stored entity or relationship.
type InstanceStatus string

const (
	StatusDraft   InstanceStatus = "DRAFT"
	StatusActive  InstanceStatus = "ACTIVE"
	StatusDeleted InstanceStatus = "DELETED"
)

// IsValid reports whether s is a known status.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusDeleted:
		return true
	default:
		return false
	}
}

// DeleteSemantic selects between marking an instance deleted and purging it.
type DeleteSemantic string

const (
	DeleteSoft DeleteSemantic = "SOFT"
	DeleteHard DeleteSemantic = "HARD"
)

// IsValid reports whether d is a known delete semantic. Empty means SOFT.
func (d DeleteSemantic) IsValid() bool {
	return d == "" || d == DeleteSoft || d == DeleteHard
}

// OrDefault returns SOFT when d is empty.
func (d DeleteSemantic) OrDefault() DeleteSemantic {
	if d == "" {
		return DeleteSoft
	}

	return d
}

// Provenance identifies the external source (registered engine) that owns an instance.
// Instances created on behalf of no engine have an empty provenance.
type Provenance struct {
	ExternalSourceGUID string `json:"externalSourceGuid,omitempty"`
	ExternalSourceName string `json:"externalSourceName,omitempty"`
}

// IsLocal reports whether the instance is not owned by any external source.
func (p Provenance) IsLocal() bool {
	return p.ExternalSourceGUID == ""
}

// Properties is the property bag stored on entities and relationships.
type Properties map[string]any

// Normalized returns a deep copy of p in the shape it has after a JSON round trip
// (numbers become float64, string maps become map[string]any). Stores persist
// properties as JSON, so comparing normalized bags avoids spurious updates.
func (p Properties) Normalized() Properties {
	if p == nil {
		return Properties{}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return maps.Clone(p)
	}

	out := Properties{}
	if err := json.Unmarshal(data, &out); err != nil {
		return maps.Clone(p)
	}

	return out
}

// Equal compares two property bags by their JSON encoding.
// Nil and empty bags are equal.
func (p Properties) Equal(other Properties) bool {
	if len(p) == 0 && len(other) == 0 {
		return true
	}

	a, errA := json.Marshal(p)
	b, errB := json.Marshal(other)

	if errA != nil || errB != nil {
		return false
	}

	return bytes.Equal(a, b)
}

// StringValue returns the string value stored under key, or "".
func (p Properties) StringValue(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}

	return ""
}

func (p Properties) putString(key, value string) {
	if value != "" {
		p[key] = value
	}
}

func (p Properties) putInt(key string, value int) {
	if value != 0 {
		p[key] = value
	}
}

func (p Properties) putBool(key string, value bool) {
	if value {
		p[key] = value
	}
}

func (p Properties) putStrings(key string, values []string) {
	if len(values) > 0 {
		p[key] = values
	}
}

func (p Properties) putMap(key string, values map[string]string) {
	if len(values) > 0 {
		p[key] = values
	}
}

// Entity is a stored metadata instance identified by GUID and, among live instances,
// by its qualified name.
type Entity struct {
	GUID            string                `json:"guid"`
	TypeName        string                `json:"typeName"`
	QualifiedName   string                `json:"qualifiedName"`
	Properties      Properties            `json:"properties,omitempty"`
	Classifications map[string]Properties `json:"classifications,omitempty"`
	Status          InstanceStatus        `json:"status"`
	Provenance      Provenance            `json:"provenance"`
	CreatedBy       string                `json:"createdBy,omitempty"`
	UpdatedBy       string                `json:"updatedBy,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}

	out := *e
	out.Properties = e.Properties.Normalized()

	if e.Classifications != nil {
		out.Classifications = make(map[string]Properties, len(e.Classifications))
		for name, props := range e.Classifications {
			out.Classifications[name] = props.Normalized()
		}
	}

	return &out
}

// Relationship links two entities. End1 and End2 are ordered as documented per type
// (for example ProcessPort runs from the process to the port).
type Relationship struct {
	GUID       string         `json:"guid"`
	TypeName   string         `json:"typeName"`
	End1GUID   string         `json:"end1Guid"`
	End2GUID   string         `json:"end2Guid"`
	Properties Properties     `json:"properties,omitempty"`
	Status     InstanceStatus `json:"status"`
	Provenance Provenance     `json:"provenance"`
	CreatedBy  string         `json:"createdBy,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of r.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}

	out := *r
	out.Properties = r.Properties.Normalized()

	return &out
}

// OtherEnd returns the GUID at the opposite end from guid.
func (r *Relationship) OtherEnd(guid string) string {
	if r.End1GUID == guid {
		return r.End2GUID
	}

	return r.End1GUID
}
