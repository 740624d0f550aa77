// Package tidbcloud provisions throwaway databases on a TiDB cluster for
// integration tests. Connection settings come from TIDB_* environment
// variables; tests are skipped when they are absent.
package tidbcloud

import (
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

// TestDB is an isolated database created for one test.
type TestDB struct {
	DB           *sql.DB
	DatabaseName string
	config       Config
}

// Config holds cluster connection information.
type Config struct {
	Host       string
	Port       string
	User       string
	UserPrefix string
	Password   string
	TLSMode    string
}

// NewTestDB creates a database named after the test and drops it on cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	cfg := getTestConfig(t)

	dbName := fmt.Sprintf("test_%s_%d", sanitizeName(t.Name()), time.Now().UnixMilli())
	if !isValidDatabaseName(dbName) {
		t.Fatalf("Invalid database name generated: %s", dbName)
	}

	bootstrap := openAndPing(t, cfg, "information_schema")
	// Safe to format: dbName is validated above.
	if _, err := bootstrap.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)); err != nil {
		_ = bootstrap.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}
	if err := bootstrap.Close(); err != nil {
		t.Logf("Warning: failed to close database connection: %v", err)
	}

	testDB := &TestDB{
		DB:           openAndPing(t, cfg, dbName),
		DatabaseName: dbName,
		config:       cfg,
	}
	t.Cleanup(func() {
		testDB.Teardown(t)
	})
	return testDB
}

// DSN returns a data source name for the test database.
func (tdb *TestDB) DSN() string {
	return buildDSN(tdb.config, tdb.DatabaseName)
}

// Teardown drops the test database and closes the connection.
func (tdb *TestDB) Teardown(t *testing.T) {
	t.Helper()

	if tdb.DB == nil {
		return
	}
	if isValidDatabaseName(tdb.DatabaseName) {
		if _, err := tdb.DB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", tdb.DatabaseName)); err != nil {
			t.Logf("Warning: Failed to drop test database %s: %v", tdb.DatabaseName, err)
		}
	}
	if err := tdb.DB.Close(); err != nil {
		t.Logf("Warning: failed to close test database connection: %v", err)
	}
}

// LoadSchema executes a SQL file of semicolon-separated statements.
func (tdb *TestDB) LoadSchema(t *testing.T, schemaPath string) {
	t.Helper()
	loadSQLFile(t, tdb.DB, schemaPath)
}

// LoadFixtures executes a SQL file of data statements.
func (tdb *TestDB) LoadFixtures(t *testing.T, fixturePath string) {
	t.Helper()
	loadSQLFile(t, tdb.DB, fixturePath)
}

// Exec runs statements in order and fails the test on the first error.
func (tdb *TestDB) Exec(t *testing.T, statements ...string) {
	t.Helper()
	for i, stmt := range statements {
		if _, err := tdb.DB.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute SQL statement %d: %v\nStatement: %s", i+1, err, stmt)
		}
	}
}

func openAndPing(t *testing.T, cfg Config, database string) *sql.DB {
	t.Helper()

	db, err := sql.Open("mysql", buildDSN(cfg, database))
	if err != nil {
		t.Fatalf("Failed to connect to TiDB: %v", err)
	}
	configureTestPool(db)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to ping TiDB database %s: %v", database, err)
	}
	return db
}

// getTestConfig reads connection info from the environment.
func getTestConfig(t *testing.T) Config {
	t.Helper()

	cfg := Config{
		Host:       os.Getenv("TIDB_HOST"),
		Port:       os.Getenv("TIDB_PORT"),
		User:       os.Getenv("TIDB_USER"),
		UserPrefix: os.Getenv("TIDB_USER_PREFIX"),
		Password:   os.Getenv("TIDB_PASSWORD"),
		TLSMode:    os.Getenv("TIDB_TLS_MODE"),
	}
	if cfg.UserPrefix != "" && !strings.HasPrefix(cfg.User, cfg.UserPrefix) {
		cfg.User = cfg.UserPrefix + cfg.User
	}
	if cfg.Host == "" || cfg.User == "" {
		t.Skip("TiDB credentials not set. Set TIDB_HOST and TIDB_USER (and TIDB_PASSWORD) to run integration tests")
	}
	if cfg.Port == "" {
		cfg.Port = "4000"
	}
	return cfg
}

func buildDSN(cfg Config, database string) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	mc.DBName = database
	mc.ParseTime = true
	mc.TLSConfig = cfg.TLSMode
	return mc.FormatDSN()
}

func configureTestPool(db *sql.DB) {
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
}

func loadSQLFile(t *testing.T, db *sql.DB, filePath string) {
	t.Helper()

	payload, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read SQL file %s: %v", filePath, err)
	}
	for i, stmt := range splitSQL(string(payload)) {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute SQL statement %d of %s: %v\nStatement: %s", i+1, filePath, err, stmt)
		}
	}
}

// sanitizeName maps a test name onto [A-Za-z0-9_], truncated so the
// timestamp suffix still fits the 64-character database name limit.
func sanitizeName(name string) string {
	var result strings.Builder
	for _, ch := range name {
		if isValidDatabaseChar(ch) {
			result.WriteRune(ch)
		} else {
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	if len(sanitized) > 40 {
		sanitized = sanitized[:40]
	}
	return sanitized
}

// splitSQL splits on semicolons. Semicolons inside literals or comments are
// not supported.
func splitSQL(sql string) []string {
	statements := strings.Split(sql, ";")
	result := make([]string, 0, len(statements))
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

func isValidDatabaseName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, ch := range name {
		if !isValidDatabaseChar(ch) {
			return false
		}
	}
	return true
}

func isValidDatabaseChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '_'
}
