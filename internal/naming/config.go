// Package naming turns SQL schema names into Go identifiers for generated
// loaders: singular exported type names, loader field names, file names and
// parameter names, with initialisms, reserved words and collisions handled.
package naming

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	// Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`

	// TypeOverrides maps a table name to the exact Go type name to use.
	TypeOverrides map[string]string `mapstructure:"type_overrides"`

	// Initialisms adds words rendered in all caps, on top of the built-in list.
	Initialisms []string `mapstructure:"initialisms"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
		TypeOverrides:     make(map[string]string),
	}
}
