package naming

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Namer provides all name transformations used by the emitter. A Namer is
// stateful: registered names are remembered so later ones can be suffixed.
type Namer struct {
	config      Config
	logger      *slog.Logger
	resolver    *CollisionResolver
	initialisms map[string]bool
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	initialisms := make(map[string]bool, len(commonInitialisms)+len(cfg.Initialisms))
	for word := range commonInitialisms {
		initialisms[word] = true
	}
	for _, word := range cfg.Initialisms {
		initialisms[strings.ToUpper(word)] = true
	}
	return &Namer{
		config:      cfg,
		logger:      logger,
		resolver:    NewCollisionResolver(logger),
		initialisms: initialisms,
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new generation run.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// ExportedName converts a snake_case SQL name to an exported Go identifier.
// Example: "author_id" -> "AuthorID", "api_url" -> "APIURL"
func (n *Namer) ExportedName(sqlName string) string {
	var b strings.Builder
	for _, word := range splitWords(sqlName) {
		b.WriteString(n.exportWord(word))
	}
	return ensureLetterStart(b.String(), "X")
}

// UnexportedName converts a SQL name to an unexported Go identifier that is
// safe to use as a parameter name.
// Example: "author_id" -> "authorID", "id" -> "id", "type" -> "type_"
func (n *Namer) UnexportedName(sqlName string) string {
	words := splitWords(sqlName)
	if len(words) == 0 {
		return "v"
	}
	var b strings.Builder
	if n.initialisms[strings.ToUpper(words[0])] {
		b.WriteString(strings.ToLower(words[0]))
	} else {
		b.WriteString(lowerFirst(words[0]))
	}
	for _, word := range words[1:] {
		b.WriteString(n.exportWord(word))
	}
	name := ensureLetterStart(b.String(), "v")
	if goKeywords[name] || goPredeclared[name] {
		return name + "_"
	}
	return name
}

func (n *Namer) exportWord(word string) string {
	upper := strings.ToUpper(word)
	if n.initialisms[upper] {
		return upper
	}
	return upperFirst(word)
}

// TypeName returns the singular exported type name for a table.
// Example: "user_profiles" -> "UserProfile"
func (n *Namer) TypeName(tableName string) string {
	if override, ok := n.config.TypeOverrides[tableName]; ok && override != "" {
		return override
	}
	return n.ExportedName(n.Singularize(tableName))
}

// LoaderFieldName names the loader for a key tuple.
// Example: ["author_id", "category"] -> "ByAuthorIDAndCategory"
func (n *Namer) LoaderFieldName(columns []string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = n.ExportedName(col)
	}
	return "By" + strings.Join(parts, "And")
}

// RegisterType registers a table and returns its collision-free type name.
func (n *Namer) RegisterType(tableName string) string {
	return n.resolver.RegisterType(n.TypeName(tableName), tableName)
}

// RegisterLoaderField registers a loader field on a type and returns its
// collision-free name.
func (n *Namer) RegisterLoaderField(typeName string, columns []string, source string) string {
	return n.resolver.RegisterField(typeName, n.LoaderFieldName(columns), source)
}

// RegisterFile returns the collision-free file name, with ".go" extension,
// for a table's generated code.
func (n *Namer) RegisterFile(tableName string) string {
	return n.resolver.RegisterFile(FileBaseName(tableName), tableName) + ".go"
}

// FileBaseName returns a lowercase file name base for a table. Names whose
// last segment would act as a build constraint get a "_table" suffix.
// Example: "Posts" -> "posts", "events_linux" -> "events_linux_table"
func FileBaseName(tableName string) string {
	words := splitWords(tableName)
	for i := range words {
		words[i] = strings.ToLower(words[i])
	}
	base := strings.Join(words, "_")
	if base == "" {
		base = "table"
	}
	if len(words) > 1 && buildConstraintSuffixes[words[len(words)-1]] {
		base += "_table"
	}
	if base == "loaders" {
		base += "_table"
	}
	return base
}

// splitWords splits a SQL name on every character that cannot appear in a
// Go identifier.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func ensureLetterStart(name, prefix string) string {
	if name == "" {
		return ""
	}
	if r, _ := utf8.DecodeRuneInString(name); !unicode.IsLetter(r) {
		return prefix + name
	}
	return name
}
