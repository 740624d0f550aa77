package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-loadergen/internal/planner"
)

func TestRun_ExplainMembership(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{
		"explain",
		"--table", "posts",
		"--columns", "author_id,category",
		"--key", "1,tech",
		"--key", "1,news",
		"--key", "1,tech",
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, "plan: membership\n"+
		"keys: 2\n"+
		"sql:  SELECT * FROM `posts` WHERE (`author_id` = ? AND `category` IN (?,?))\n"+
		"args: [1,\"tech\",\"news\"]\n", out.String())
}

func TestRun_ExplainDisjunction(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{
		"explain",
		"--table", "posts",
		"--select", "id,title",
		"--columns", "author_id,category",
		"--key", "1,tech",
		"--key", "2,news",
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "plan: disjunction\n")
	assert.Contains(t, out.String(),
		"sql:  SELECT `id`, `title` FROM `posts` WHERE ((`author_id` = ? AND `category` = ?) OR (`author_id` = ? AND `category` = ?))\n")
}

func TestRun_ExplainEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"explain", "--columns", "id"}, &out))
	assert.Equal(t, "plan: empty\nno query is issued\n", out.String())
}

func TestRun_ExplainErrors(t *testing.T) {
	var out bytes.Buffer

	err := run([]string{"explain", "--key", "1"}, &out)
	assert.EqualError(t, err, "--columns is required")

	err = run([]string{"explain", "--columns", "a,b", "--key", "1"}, &out)
	assert.EqualError(t, err, "key 1 has 1 values, expected 2")

	err = run([]string{"explain", "--columns", "id", "--key", "null"}, &out)
	assert.ErrorIs(t, err, planner.ErrNullKeyValue)
}

func TestParseKeyValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"tech", "tech"},
		{"'42'", "42"},
		{`"a b"`, "a b"},
		{"NULL", nil},
		{"1.5", "1.5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseKeyValue(tt.in), tt.in)
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--version"}, &out))
	assert.Equal(t, "loadergen dev (none)\n", out.String())
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"help"}, &out))
	assert.Contains(t, out.String(), "loadergen explain")
}

func TestRun_GenerateFromSchemaFile(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`
name: blog
tables:
  - name: posts
    columns:
      - {name: id, type: bigint, primary: true}
      - {name: author_id, type: bigint}
    indexes:
      - {name: author_idx, columns: [author_id]}
  - name: audit
    columns:
      - {name: line, type: text}
`), 0o600))
	configPath := filepath.Join(dir, "loadergen.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("observability:\n  logging:\n    level: error\n"), 0o600))
	outDir := filepath.Join(dir, "gen")

	var out bytes.Buffer
	err := run([]string{
		"generate",
		"--config", configPath,
		"--source.schema_file", schemaPath,
		"--output.dir", outDir,
		"--output.package", "blogdb",
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, "generated 2 loaders for 1 tables in "+outDir+"\nskipped (no usable key): audit\n", out.String())
	assert.FileExists(t, filepath.Join(outDir, "posts.go"))
	assert.FileExists(t, filepath.Join(outDir, "loaders.go"))
}

func TestRun_GenerateInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "loadergen.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("output:\n  package: not-valid\n"), 0o600))

	var out bytes.Buffer
	err := run([]string{"--config", configPath, "--source.schema_file", filepath.Join(dir, "schema.yaml")}, &out)
	assert.EqualError(t, err, "configuration validation failed")
}
