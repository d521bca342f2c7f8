package migrations

var MigrationNames = migrationNames
