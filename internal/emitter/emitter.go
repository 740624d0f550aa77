// Package emitter renders loader groups as Go source. Every table gets a file
// holding a <Type>Loaders struct with one batched loader per key, and loaders.go
// ties the tables together behind a single NewLoaders constructor.
package emitter

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dave/jennifer/jen"

	"tidb-loadergen/internal/analyzer"
	"tidb-loadergen/internal/naming"
	"tidb-loadergen/internal/sqltype"
)

// DefaultRuntimeImport is the import path of the loader runtime.
const DefaultRuntimeImport = "tidb-loadergen/loader"

// AggregateFile is the name of the file holding the Loaders struct.
const AggregateFile = "loaders.go"

const header = "Code generated by loadergen. DO NOT EDIT."

// ErrNoLoaders is returned when no table has a usable key.
var ErrNoLoaders = errors.New("no table has a usable key")

// Options controls code generation.
type Options struct {
	// Package is the package clause of generated files.
	Package string
	// RuntimeImport overrides DefaultRuntimeImport.
	RuntimeImport string
	// Namer maps SQL names to Go identifiers. A default namer is used when nil.
	Namer  *naming.Namer
	Logger *slog.Logger
}

type generator struct {
	pkg     string
	runtime string
	namer   *naming.Namer
	logger  *slog.Logger
}

// tableOutput records what the aggregate file needs to know about a table.
type tableOutput struct {
	typeName string
	table    string
}

// Generate renders one file per group plus the aggregate file. The result maps
// file names to formatted source.
func Generate(groups []analyzer.Group, opts Options) (map[string][]byte, error) {
	if len(groups) == 0 {
		return nil, ErrNoLoaders
	}
	g := &generator{
		pkg:     opts.Package,
		runtime: opts.RuntimeImport,
		namer:   opts.Namer,
		logger:  opts.Logger,
	}
	if g.pkg == "" {
		g.pkg = "loaders"
	}
	if g.runtime == "" {
		g.runtime = DefaultRuntimeImport
	}
	if g.namer == nil {
		g.namer = naming.New(naming.DefaultConfig(), opts.Logger)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	files := make(map[string][]byte, len(groups)+1)
	tables := make([]tableOutput, 0, len(groups))
	for _, group := range groups {
		if len(group.Loaders) == 0 {
			continue
		}
		typeName := g.namer.RegisterType(group.Table)
		fileName := g.namer.RegisterFile(group.Table)

		src, err := render(g.tableFile(typeName, group))
		if err != nil {
			return nil, fmt.Errorf("failed to render loaders for %s: %w", group.Table, err)
		}
		files[fileName] = src
		tables = append(tables, tableOutput{typeName: typeName, table: group.Table})
		g.logger.Debug("generated table loaders",
			slog.String("table", group.Table),
			slog.String("type", typeName),
			slog.String("file", fileName),
			slog.Int("loaders", len(group.Loaders)),
		)
	}
	if len(tables) == 0 {
		return nil, ErrNoLoaders
	}

	src, err := render(g.aggregateFile(tables))
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", AggregateFile, err)
	}
	files[AggregateFile] = src
	return files, nil
}

func render(f *jen.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *generator) newFile() *jen.File {
	f := jen.NewFile(g.pkg)
	f.HeaderComment(header)
	f.ImportName(g.runtime, "loader")
	return f
}

func (g *generator) tableFile(typeName string, group analyzer.Group) *jen.File {
	f := g.newFile()
	structName := typeName + "Loaders"
	tableVar := lowerFirst(typeName) + "Table"

	table := jen.Dict{
		jen.Id("Name"):    jen.Lit(group.Table),
		jen.Id("Columns"): stringSlice(group.Columns),
	}
	if len(group.Collations) > 0 {
		collations := jen.Dict{}
		for col, collation := range group.Collations {
			collations[jen.Lit(col)] = jen.Lit(collation)
		}
		table[jen.Id("Collations")] = jen.Map(jen.String()).String().Values(collations)
	}
	if len(group.Timestamps) > 0 {
		table[jen.Id("Timestamps")] = stringSlice(group.Timestamps)
	}
	f.Commentf("%s describes the %s table.", tableVar, group.Table)
	f.Var().Id(tableVar).Op("=").Qual(g.runtime, "Table").Values(table)

	fields := make([]string, len(group.Loaders))
	for i, desc := range group.Loaders {
		fields[i] = g.namer.RegisterLoaderField(structName, desc.Columns, desc.Source)
	}

	f.Commentf("%s holds the batched lookups of the %s table.", structName, group.Table)
	f.Type().Id(structName).StructFunc(func(s *jen.Group) {
		for i, desc := range group.Loaders {
			s.Comment(fields[i] + " " + fieldComment(group.Table, desc))
			s.Id(fields[i]).Op("*").Qual(g.runtime, "Loader").Types(g.resultType(desc.Shape))
		}
	})

	f.Commentf("New%s creates the %s loaders. Options apply to every loader.", structName, group.Table)
	f.Func().Id("New"+structName).Params(
		jen.Id("exec").Qual(g.runtime, "Executor"),
		jen.Id("opts").Op("...").Qual(g.runtime, "Option"),
	).Op("*").Id(structName).Block(
		jen.Return(jen.Op("&").Id(structName).Values(jen.DictFunc(func(d jen.Dict) {
			for i, desc := range group.Loaders {
				d[jen.Id(fields[i])] = jen.Qual(g.runtime, constructor(desc.Shape)).Call(
					jen.Id("exec"),
					jen.Id(tableVar),
					stringSlice(desc.Columns),
					jen.Id("opts").Op("..."),
				)
			}
		}))),
	)

	for i, desc := range group.Loaders {
		g.loadMethod(f, structName, fields[i], desc)
	}
	return f
}

// loadMethod emits a typed wrapper around Loader.Load for one key.
func (g *generator) loadMethod(f *jen.File, structName, field string, desc analyzer.LoaderDescriptor) {
	params := make([]jen.Code, 0, len(desc.Columns)+1)
	args := make([]jen.Code, 0, len(desc.Columns)+1)
	params = append(params, jen.Id("ctx").Qual("context", "Context"))
	args = append(args, jen.Id("ctx"))

	used := map[string]bool{"ctx": true, "l": true}
	for i, col := range desc.Columns {
		name := g.namer.UnexportedName(col)
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s%d", g.namer.UnexportedName(col), n)
		}
		used[name] = true

		var typ sqltype.ValueType
		if i < len(desc.Types) {
			typ = desc.Types[i]
		}
		params = append(params, jen.Id(name).Add(goType(typ)))
		args = append(args, jen.Id(name))
	}

	method := "Load" + field
	f.Commentf("%s loads %s.", method, loadSummary(desc))
	f.Func().Params(jen.Id("l").Op("*").Id(structName)).Id(method).Params(params...).Params(
		g.resultType(desc.Shape), jen.Error(),
	).Block(
		jen.Return(jen.Id("l").Dot(field).Dot("Load").Call(args...)),
	)
}

func (g *generator) aggregateFile(tables []tableOutput) *jen.File {
	f := g.newFile()

	f.Comment("Loaders holds the loaders of every table.")
	f.Type().Id("Loaders").StructFunc(func(s *jen.Group) {
		for _, t := range tables {
			s.Id(t.typeName).Op("*").Id(t.typeName + "Loaders").Comment(t.table)
		}
	})

	f.Comment("NewLoaders creates loaders for every table. Create one set per request")
	f.Comment("so lookups made while serving it share batches.")
	f.Func().Id("NewLoaders").Params(
		jen.Id("exec").Qual(g.runtime, "Executor"),
		jen.Id("opts").Op("...").Qual(g.runtime, "Option"),
	).Op("*").Id("Loaders").Block(
		jen.Return(jen.Op("&").Id("Loaders").Values(jen.DictFunc(func(d jen.Dict) {
			for _, t := range tables {
				d[jen.Id(t.typeName)] = jen.Id("New"+t.typeName+"Loaders").Call(
					jen.Id("exec"),
					jen.Id("opts").Op("..."),
				)
			}
		}))),
	)
	return f
}

// resultType is the value type a loader of the given shape resolves to.
func (g *generator) resultType(shape analyzer.Shape) *jen.Statement {
	switch shape {
	case analyzer.SingleUnique, analyzer.CompositeUnique:
		return jen.Qual(g.runtime, "Row")
	case analyzer.SingleMany, analyzer.CompositeMany:
		return jen.Index().Qual(g.runtime, "Row")
	default:
		panic(fmt.Sprintf("emitter: unknown shape %v", shape))
	}
}

func constructor(shape analyzer.Shape) string {
	switch shape {
	case analyzer.SingleUnique, analyzer.CompositeUnique:
		return "NewUnique"
	case analyzer.SingleMany, analyzer.CompositeMany:
		return "NewMany"
	default:
		panic(fmt.Sprintf("emitter: unknown shape %v", shape))
	}
}

func goType(t sqltype.ValueType) jen.Code {
	switch t {
	case sqltype.TypeTimestamp:
		return jen.Qual("time", "Time")
	case sqltype.TypeUnknown:
		return jen.Any()
	default:
		return jen.Id(t.GoType())
	}
}

func fieldComment(table string, desc analyzer.LoaderDescriptor) string {
	by := "primary key"
	if desc.Source != analyzer.SourcePrimaryKey {
		by = "index " + strings.TrimPrefix(desc.Source, "index:")
	}
	switch desc.Shape {
	case analyzer.SingleUnique, analyzer.CompositeUnique:
		return fmt.Sprintf("loads one %s row by %s %v.", table, by, desc.Columns)
	case analyzer.SingleMany, analyzer.CompositeMany:
		return fmt.Sprintf("loads the %s rows matching %s %v.", table, by, desc.Columns)
	default:
		panic(fmt.Sprintf("emitter: unknown shape %v", desc.Shape))
	}
}

func loadSummary(desc analyzer.LoaderDescriptor) string {
	if desc.Shape.IsUnique() {
		return "the row with the given key, or a *loader.NotFound error"
	}
	return "every row with the given key"
}

func stringSlice(values []string) *jen.Statement {
	items := make([]jen.Code, len(values))
	for i, v := range values {
		items[i] = jen.Lit(v)
	}
	return jen.Index().String().Values(items...)
}

// lowerFirst lowers the leading upper-case run of an exported name, keeping
// the last letter of an initialism that starts the next word.
// Example: "User" -> "user", "APIKey" -> "apiKey", "URL" -> "url"
func lowerFirst(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n > 1 && n < len(runes) && unicode.IsLower(runes[n]) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
