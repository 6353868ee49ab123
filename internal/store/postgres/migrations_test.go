package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	t.Run("embedded schema", func(t *testing.T) {
		migrations, err := loadMigrations(migrationsFS, "migrations")
		require.NoError(t, err)
		require.NotEmpty(t, migrations)
		require.Equal(t, 1, migrations[0].version)
		require.Contains(t, migrations[0].sql, "session_keys")
	})

	t.Run("ordered by version", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/10_teams.sql":  {Data: []byte("-- 10")},
			"m/2_deals.sql":   {Data: []byte("-- 2")},
			"m/1_initial.sql": {Data: []byte("-- 1")},
			"m/README.md":     {Data: []byte("ignored")},
		}
		migrations, err := loadMigrations(fsys, "m")
		require.NoError(t, err)
		require.Len(t, migrations, 3)
		require.Equal(t, []int{1, 2, 10}, []int{migrations[0].version, migrations[1].version, migrations[2].version})
	})

	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr string
	}{
		{name: "no version", files: fstest.MapFS{"m/initial.sql": {}}, wantErr: "name must be"},
		{name: "bad version", files: fstest.MapFS{"m/x_initial.sql": {}}, wantErr: "invalid version"},
		{name: "duplicate", files: fstest.MapFS{"m/1_a.sql": {}, "m/1_b.sql": {}}, wantErr: "share version 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMigrations(tt.files, "m")
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
