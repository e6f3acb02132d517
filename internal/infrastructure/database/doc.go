// Package database opens the SQLite file holding trackguard's preferences
// (device identity keys and the last management configuration) and keeps
// its schema current.
//
// Schema files come from an fs.FS, normally the embedded migrations
// package, named <version>_<name>.up.sql with a matching .down.sql:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations only ever add: new columns are NULLABLE or carry a DEFAULT.
package database
