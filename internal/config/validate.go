package config

import (
	"fmt"
	"go/token"
	"net"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"

	"tidb-loadergen/internal/naming"
	"tidb-loadergen/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	if strings.TrimSpace(c.Source.SchemaFile) == "" {
		c.Database.validate(result)
	} else {
		c.Source.validate(result)
	}
	c.Output.validate(result)
	c.Observability.validate(result)
	validateSchemaFilters(result, c.SchemaFilters)
	validateNamingConfig(result, c.Naming)

	return result
}

func (s *SourceConfig) validate(result *ValidationResult) {
	info, err := os.Stat(s.SchemaFile)
	switch {
	case err != nil:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "source.schema_file",
			Message: fmt.Sprintf("cannot read schema file: %v", err),
		})
	case info.IsDir():
		result.Errors = append(result.Errors, ValidationError{
			Field:   "source.schema_file",
			Message: fmt.Sprintf("%q is a directory", s.SchemaFile),
		})
	}
}

func (o *OutputConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(o.Dir) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output.dir",
			Message: "output directory cannot be empty",
		})
	}
	if !token.IsIdentifier(o.Package) || o.Package == "_" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output.package",
			Message: fmt.Sprintf("%q is not a valid package name", o.Package),
			Hint:    "use a lowercase Go identifier such as loaders",
		})
	} else if o.Package != strings.ToLower(o.Package) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "output.package",
			Message: fmt.Sprintf("package name %q is not lowercase", o.Package),
		})
	}
	if strings.TrimSpace(o.RuntimeImport) == "" || strings.ContainsAny(o.RuntimeImport, " \t\"") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output.runtime_import",
			Message: fmt.Sprintf("invalid import path %q", o.RuntimeImport),
		})
	}
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "schema_filters.allow_tables", filters.AllowTables)
	validateGlobList(result, "schema_filters.deny_tables", filters.DenyTables)
	validatePatternMap(result, "schema_filters.allow_columns", filters.AllowColumns)
	validatePatternMap(result, "schema_filters.deny_columns", filters.DenyColumns)
}

// reservedTypeNames are declared by the aggregate file of every generated package.
var reservedTypeNames = map[string]bool{
	"Loaders":    true,
	"NewLoaders": true,
}

var pascalCaseTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for tableName, typeName := range cfg.TypeOverrides {
		tableName = strings.TrimSpace(tableName)
		typeName = strings.TrimSpace(typeName)
		if tableName == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "naming.type_overrides",
				Message: "table name cannot be empty",
			})
			continue
		}
		if typeName == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "naming.type_overrides",
				Message: fmt.Sprintf("type override for table %q cannot be empty", tableName),
			})
			continue
		}
		if !pascalCaseTypePattern.MatchString(typeName) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "naming.type_overrides",
				Message: fmt.Sprintf("type override %q for table %q must be PascalCase", typeName, tableName),
			})
			continue
		}
		if reservedTypeNames[typeName] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "naming.type_overrides",
				Message: fmt.Sprintf("type override %q for table %q collides with the generated aggregate", typeName, tableName),
			})
		}
	}
	for _, word := range cfg.Initialisms {
		if !token.IsIdentifier(word) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "naming.initialisms",
				Message: fmt.Sprintf("initialism %q is not a valid identifier", word),
			})
		}
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.MyCnfFile) != "" && (strings.TrimSpace(d.ConnectionString) != "" || strings.TrimSpace(d.ConnectionStringFile) != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.mycnf_file",
			Message: "mycnf_file is mutually exclusive with dsn/dsn_file",
			Hint:    "set either mycnf_file or dsn/dsn_file, not both",
		})
	}

	if strings.TrimSpace(d.MyCnfFile) != "" {
		settings, err := parseMyCnfFile(d.MyCnfFile)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.mycnf_file",
				Message: fmt.Sprintf("failed to parse my.cnf file: %v", err),
				Hint:    "provide a valid MySQL defaults file with [client] settings",
			})
		} else {
			if d.Host == "" && settings.Host != "" {
				d.Host = settings.Host
			}
			if d.Port == 0 && settings.HasPort {
				d.Port = settings.Port
			}
			if d.User == "" && settings.User != "" {
				d.User = settings.User
			}
			if d.Password == "" && settings.Password != "" {
				d.Password = settings.Password
			}
			if d.TLS.Mode == "" && settings.TLSMode != "" {
				d.TLS.Mode = settings.TLSMode
			}
			if settings.HasDBName {
				if strings.TrimSpace(d.Database) == "" {
					d.Database = settings.Database
				} else if d.Database != settings.Database {
					result.Errors = append(result.Errors, ValidationError{
						Field:   "database.database",
						Message: fmt.Sprintf("database mismatch: database.database=%q but database.mycnf_file targets %q", d.Database, settings.Database),
						Hint:    "either remove database.database or set it to match my.cnf database",
					})
				}
			}
		}
	}

	// Port range validation (only if not using connection string)
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
		})
	}

	d.TLS.validate(result)

	if d.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}

	effectiveDatabase, _, err := resolveEffectiveDatabaseName(d.Database, d.ConnectionString, d.MyCnfFile)
	if err != nil {
		switch {
		case strings.HasPrefix(err.Error(), "database.dsn"):
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.dsn",
				Message: err.Error(),
				Hint:    "set a valid MySQL DSN in database.dsn/database.dsn_file",
			})
		case strings.HasPrefix(err.Error(), "database.mycnf_file"):
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.mycnf_file",
				Message: err.Error(),
				Hint:    "set a valid my.cnf file and include [client] database or database.database",
			})
		case strings.Contains(err.Error(), "mismatch"):
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.database",
				Message: err.Error(),
				Hint:    "either remove database.database or set it to match the DSN/my.cnf database",
			})
		default:
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.database",
				Message: err.Error(),
				Hint:    "set database.database or include a /database in database.dsn/database.dsn_file or database.mycnf_file",
			})
		}
		return
	}

	d.Database = effectiveDatabase
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	// Mode validation
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", t.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
	}

	// CA file is required for verify-ca and verify-full
	caFile := t.resolveCAFile()
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && caFile == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.ca_file",
			Message: "CA file is required for verify-ca and verify-full modes",
			Hint:    "set ca_file or ca_file_env to specify the CA certificate",
		})
	}

	// Client cert and key must both be specified or neither
	certFile := t.resolveCertFile()
	keyFile := t.resolveKeyFile()
	if (certFile != "" && keyFile == "") || (certFile == "" && keyFile != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.cert_file",
			Message: "both cert_file and key_file must be specified for client certificate authentication",
			Hint:    "provide both cert_file and key_file, or neither",
		})
	}

	// Warn about skip-verify in non-empty mode
	if t.Mode == "skip-verify" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.mode",
			Message: "skip-verify mode does not verify server certificates",
			Hint:    "use verify-ca or verify-full in production",
		})
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for tablePattern, columnPatterns := range patternMap {
		if strings.TrimSpace(tablePattern) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "table pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), ""); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err),
			})
		}
		for _, columnPattern := range columnPatterns {
			if strings.TrimSpace(columnPattern) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("column pattern for table pattern %q cannot be empty", tablePattern),
				})
				continue
			}
			if _, err := path.Match(strings.ToLower(columnPattern), ""); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("invalid column glob pattern %q for table pattern %q: %v", columnPattern, tablePattern, err),
				})
			}
		}
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "glob pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), ""); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid glob pattern %q: %v", pattern, err),
			})
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	// Log level validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	// Log format validation
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is outside [0, 1]", o.TraceSampleRatio),
		})
	}

	o.OTLP.validate("observability.otlp", result)

	// Signal-specific OTLP validation
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" {
		if !validOTLPEndpoint(o.Endpoint) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".endpoint",
				Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				Hint:    "use host:port or a full URL",
			})
		}
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
