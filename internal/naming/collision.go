package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver tracks registered names and resolves collisions
// by applying numeric suffixes when duplicates are detected.
type CollisionResolver struct {
	seenTypes  map[string]string            // Go type name → source table
	seenFields map[string]map[string]string // type name → field name → source
	seenFiles  map[string]string            // file name → source table
	logger     *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seenTypes:  make(map[string]string),
		seenFields: make(map[string]map[string]string),
		seenFiles:  make(map[string]string),
		logger:     logger,
	}
}

// RegisterType registers a Go type name and returns the resolved name.
func (c *CollisionResolver) RegisterType(typeName, tableName string) string {
	return c.resolveCollision(typeName, "", c.seenTypes, "table:"+tableName)
}

// RegisterField registers a field name within a type and returns the resolved name.
func (c *CollisionResolver) RegisterField(typeName, fieldName, source string) string {
	if c.seenFields[typeName] == nil {
		c.seenFields[typeName] = make(map[string]string)
	}
	return c.resolveCollision(fieldName, "", c.seenFields[typeName], source)
}

// RegisterFile registers a base file name (without ".go") and returns the
// resolved name.
func (c *CollisionResolver) RegisterFile(baseName, tableName string) string {
	return c.resolveCollision(baseName, "_", c.seenFiles, "table:"+tableName)
}

// resolveCollision attempts to register a name in the given map.
// If the name already exists, finds the next available numeric suffix.
func (c *CollisionResolver) resolveCollision(name, sep string, seen map[string]string, source string) string {
	if _, exists := seen[name]; !exists {
		seen[name] = source
		return name
	}

	existingSource := seen[name]
	c.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", name),
		slog.String("existing_source", existingSource),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%s%d", name, sep, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}
