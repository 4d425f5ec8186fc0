package database

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{User: "app", Pass: "pw", Host: "db", Port: "3306", Name: "booking"})

	assert.True(t, strings.HasPrefix(dsn, "app:pw@tcp(db:3306)/booking?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.NotContains(t, dsn, "multiStatements")
}

func TestDSN_SessionTimeZoneIsUTC(t *testing.T) {
	dsn := DSN(config.DBConfig{User: "app", Host: "db", Port: "3306", Name: "booking"})

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "'+00:00'", parsed.Params["time_zone"])
	assert.Equal(t, time.UTC, parsed.Loc)
}

func TestDSN_NoPassword(t *testing.T) {
	dsn := DSN(config.DBConfig{User: "app", Host: "db", Port: "3306", Name: "booking"})
	assert.True(t, strings.HasPrefix(dsn, "app@tcp(db:3306)/booking"), dsn)
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestMigrationsSingleStatement(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)

	for _, e := range entries {
		body, err := fs.ReadFile(migrationFS, "migrations/"+e.Name())
		require.NoError(t, err)
		stmt := strings.TrimSpace(string(body))
		assert.Equal(t, 1, strings.Count(stmt, ";"), e.Name())
		assert.True(t, strings.HasSuffix(stmt, ";"), e.Name())
	}
}
