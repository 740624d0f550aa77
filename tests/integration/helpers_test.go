//go:build integration
// +build integration

package integration

import (
	"testing"

	"tidb-loadergen/internal/testutil/tidbcloud"
)

// setupLoaderDB creates a database holding the loader fixtures.
func setupLoaderDB(t *testing.T) *tidbcloud.TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := tidbcloud.NewTestDB(t)
	testDB.LoadSchema(t, "../fixtures/loader_schema.sql")
	testDB.LoadFixtures(t, "../fixtures/loader_seed.sql")
	return testDB
}
