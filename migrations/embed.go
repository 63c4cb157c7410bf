// Package migrations embeds the SQL schema so the service binary can apply it
// without a deploy-time file dependency.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists migrations in apply order.
var Files = []string{
	"001_init.sql",
	"002_notify.sql",
}
