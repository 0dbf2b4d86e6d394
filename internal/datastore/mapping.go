package datastore

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/archivist/internal/document"
)

// Entity is a Go value persisted in the live store.
type Entity interface {
	CollectionName() string
}

// ArchiveSpec is a type-level archive declaration.
type ArchiveSpec struct {
	// Collection overrides the archive collection name. Empty means
	// "<collection>_archive".
	Collection string
	// Count is the number of snapshots retained per identity.
	Count int
}

// ArchiveDeclarer is implemented by entities that declare archiving on the
// type itself rather than through explicit configuration.
type ArchiveDeclarer interface {
	ArchiveDeclaration() ArchiveSpec
}

// Mapping describes how one kind of entity is stored.
type Mapping struct {
	Kind       string
	Collection string
	// VersionFields lists every field declared as a version counter. Valid
	// mappings have at most one; the archive registry rejects anything else
	// for archived kinds.
	VersionFields []string
	// Archive is the type-level declaration, if any.
	Archive *ArchiveSpec

	typ reflect.Type
}

// IDField is the document field holding the identity.
func (m *Mapping) IDField() string {
	return document.IDField
}

// VersionField returns the single version field, or "" when the kind is not
// versioned.
func (m *Mapping) VersionField() (string, error) {
	switch len(m.VersionFields) {
	case 0:
		return "", nil
	case 1:
		return m.VersionFields[0], nil
	default:
		return "", fmt.Errorf("%s: %w: %s", m.Kind, ErrMultipleVersionFields, strings.Join(m.VersionFields, ", "))
	}
}

// mappingFromType derives a Mapping from struct tags.
func mappingFromType(e Entity) (*Mapping, error) {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("map %T: entity must be a struct", e)
	}

	m := &Mapping{
		Kind:       t.Name(),
		Collection: e.CollectionName(),
		typ:        t,
	}
	if m.Collection == "" {
		return nil, fmt.Errorf("map %s: empty collection name", m.Kind)
	}

	hasID := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := jsonName(f)
		if name == "" {
			continue
		}
		if name == document.IDField {
			hasID = true
		}
		if hasTagOption(f.Tag.Get("doc"), "version") {
			if !document.ValidFieldName(name) {
				return nil, fmt.Errorf("map %s: invalid version field name %q", m.Kind, name)
			}
			m.VersionFields = append(m.VersionFields, name)
		}
	}
	if !hasID {
		return nil, fmt.Errorf("map %s: %w: no field tagged json:\"_id\"", m.Kind, ErrNoIdentity)
	}

	if d, ok := e.(ArchiveDeclarer); ok {
		spec := d.ArchiveDeclaration()
		m.Archive = &spec
	}
	return m, nil
}

// jsonName returns the document field name for a struct field, or "" when
// the field is not serialized.
func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

func hasTagOption(tag, option string) bool {
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == option {
			return true
		}
	}
	return false
}
