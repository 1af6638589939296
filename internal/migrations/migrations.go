// Package migrations holds the bun schema migrations. Each file registers its
// up/down pair with Migrations from an init function.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry consumed by the db subcommands and by tests.
var Migrations = migrate.NewMigrations()
