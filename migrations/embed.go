// Package migrations embeds the SQL schema applied by db.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
