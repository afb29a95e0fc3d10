package tables

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/storesync/internal/core"
)

// Catalog is a YAML file of entity definitions. Entities in a catalog are
// added to the registry, replacing a built-in entity with the same key.
type Catalog struct {
	Entities []CatalogEntity `yaml:"entities"`
}

// CatalogEntity is the YAML form of a core.EntityDefinition.
type CatalogEntity struct {
	Key   string `yaml:"key"`
	Table string `yaml:"table,omitempty"`
	Group string `yaml:"group,omitempty"`
	Label string `yaml:"label,omitempty"`

	Fields []CatalogField `yaml:"fields"`

	// IdentityKeys lists the primary key first.
	IdentityKeys [][]string `yaml:"identity_keys"`

	TimestampField      string              `yaml:"timestamp_field,omitempty"`
	ForeignKeys         []CatalogForeignKey `yaml:"foreign_keys,omitempty"`
	Mode                string              `yaml:"mode,omitempty"`
	SkipUniqueConflicts bool                `yaml:"skip_unique_conflicts,omitempty"`
}

type CatalogField struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required,omitempty"`
}

type CatalogForeignKey struct {
	Column     string `yaml:"column"`
	References string `yaml:"references"`
}

// ParseCatalog decodes a catalog. Unknown keys are rejected.
func ParseCatalog(r io.Reader) ([]core.EntityDefinition, error) {
	var cat Catalog
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	defs := make([]core.EntityDefinition, 0, len(cat.Entities))
	for i, e := range cat.Entities {
		def, err := e.definition()
		if err != nil {
			return nil, fmt.Errorf("entity %d (%s): %w", i, e.Key, err)
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (e CatalogEntity) definition() (core.EntityDefinition, error) {
	mode, err := core.ParseMode(e.Mode)
	if err != nil {
		return core.EntityDefinition{}, err
	}

	def := core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   e.Key,
			Table: e.Table,
			Group: e.Group,
			Label: e.Label,
		},
		TimestampField:      e.TimestampField,
		Mode:                mode,
		SkipUniqueConflicts: e.SkipUniqueConflicts,
	}
	for _, f := range e.Fields {
		def.Fields = append(def.Fields, core.FieldSpec{Name: f.Name, Required: f.Required})
	}
	for _, k := range e.IdentityKeys {
		def.IdentityKeys = append(def.IdentityKeys, core.IdentityKey(k))
	}
	for _, fk := range e.ForeignKeys {
		def.ForeignKeys = append(def.ForeignKeys, core.ForeignKey{Column: fk.Column, References: fk.References})
	}
	return def, nil
}

// LoadCatalog reads the catalog at path and registers its entities.
// Returns the number of entities registered.
func LoadCatalog(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}

	defs, err := ParseCatalog(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for _, def := range defs {
		if err := core.Put(def); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}
