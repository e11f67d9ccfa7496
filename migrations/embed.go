package migrations

import "embed"

// Files embeds the SQL migrations, applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
