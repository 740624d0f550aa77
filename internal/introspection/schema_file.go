package introspection

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tidb-loadergen/internal/sqltype"
)

type schemaDocument struct {
	Name   string          `yaml:"name"`
	Tables []tableDocument `yaml:"tables"`
}

type tableDocument struct {
	Name       string           `yaml:"name"`
	View       bool             `yaml:"view"`
	Comment    string           `yaml:"comment"`
	Columns    []columnDocument `yaml:"columns"`
	PrimaryKey []string         `yaml:"primary_key"`
	Indexes    []indexDocument  `yaml:"indexes"`
}

type columnDocument struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Primary   bool   `yaml:"primary"`
	Nullable  bool   `yaml:"nullable"`
	Comment   string `yaml:"comment"`
	Collation string `yaml:"collation"`
	// ValueType overrides the value type derived from Type.
	ValueType string `yaml:"value_type"`
}

type indexDocument struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
	Where   string   `yaml:"where"`
}

// LoadSchemaFile reads a YAML schema description from disk.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %q: %w", path, err)
	}
	schema, err := ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("schema file %q: %w", path, err)
	}
	return schema, nil
}

// ParseSchema decodes a YAML schema description. Index key parts wrapped in
// parentheses are treated as expressions, matching MySQL functional key part syntax,
// and a "where" entry marks a partial index.
func ParseSchema(data []byte) (*Schema, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc schemaDocument
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &Schema{Tables: []Table{}}, nil
		}
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	schema := &Schema{
		Name:   doc.Name,
		Tables: make([]Table, 0, len(doc.Tables)),
	}
	seen := make(map[string]bool, len(doc.Tables))
	for i, td := range doc.Tables {
		name := strings.TrimSpace(td.Name)
		if name == "" {
			return nil, fmt.Errorf("tables[%d]: name is required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("tables[%d]: duplicate table %q", i, name)
		}
		seen[name] = true

		table := Table{
			Name:       name,
			IsView:     td.View,
			Comment:    strings.TrimSpace(td.Comment),
			Columns:    make([]Column, 0, len(td.Columns)),
			PrimaryKey: append([]string(nil), td.PrimaryKey...),
		}
		for j, cd := range td.Columns {
			colName := strings.TrimSpace(cd.Name)
			if colName == "" {
				return nil, fmt.Errorf("tables[%d].columns[%d]: name is required", i, j)
			}
			valueType, err := columnValueType(cd)
			if err != nil {
				return nil, fmt.Errorf("tables[%d].columns[%d]: %w", i, j, err)
			}
			table.Columns = append(table.Columns, Column{
				Name:         colName,
				DataType:     baseTypeName(cd.Type),
				ColumnType:   cd.Type,
				IsNullable:   cd.Nullable,
				IsPrimaryKey: cd.Primary,
				Comment:      strings.TrimSpace(cd.Comment),
				ValueType:    valueType,
				Collation:    strings.TrimSpace(cd.Collation),
			})
		}
		for _, id := range td.Indexes {
			index := Index{
				Name:      strings.TrimSpace(id.Name),
				Unique:    id.Unique,
				Condition: strings.TrimSpace(id.Where),
				Columns:   make([]string, 0, len(id.Columns)),
			}
			for _, part := range id.Columns {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, "(") {
					part = ""
				}
				index.Columns = append(index.Columns, part)
			}
			table.Indexes = append(table.Indexes, index)
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

// columnValueType maps the column type, or the explicit value_type when given.
func columnValueType(cd columnDocument) (sqltype.ValueType, error) {
	name := strings.TrimSpace(cd.ValueType)
	if name == "" {
		return sqltype.MapValueType(cd.Type, cd.Type), nil
	}
	vt := sqltype.ParseValueType(name)
	if vt == sqltype.TypeUnknown && !strings.EqualFold(name, "unknown") {
		return sqltype.TypeUnknown, fmt.Errorf("unknown value_type %q", name)
	}
	return vt, nil
}

func baseTypeName(columnType string) string {
	base := strings.TrimSpace(columnType)
	if idx := strings.IndexAny(base, "( "); idx != -1 {
		base = base[:idx]
	}
	return strings.ToLower(base)
}
