// Package pagedb opens SQLite databases through a vfs.VFS, configured so
// that each database page is exactly one block of its pagefile.File.
//
// Databases use a page_size equal to pagefile.BlockSize, and
// journal_mode=MEMORY: the rollback journal never leaves process memory,
// and transactions are made durable by the flush of dirty blocks when SQLite
// syncs the main database file. Temporary tables and indices are also held
// in memory.
//
// A database is written by a single connection (see DB.SetMaxOpenConns),
// as the VFS doesn't lock.
package pagedb

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/pagevfs/pagefile"
	"go.gazette.dev/pagevfs/vfs"
)

// DriverName is the database/sql driver of pagedb connections. It's the
// go-sqlite3 driver, with a ConnectHook which configures each connection.
const DriverName = "sqlite3_pagevfs"

// DefaultDatabase is the conventional name of a VFS's database.
const DefaultDatabase = "main.db3"

// Open database |name| of the VFS, registering the VFS with SQLite if it
// isn't already. The database is created if it doesn't exist.
func Open(v *vfs.VFS, name string) (*sql.DB, error) {
	if vfs.Lookup(v.Name) != v {
		if err := vfs.Register(v); err != nil {
			return nil, err
		}
	}

	var db, err = sql.Open(DriverName, URIForDB(v.Name, name))
	if err != nil {
		return nil, errors.WithMessagef(err, "opening database %q", name)
	}

	// Each connection opens its own pagefile.File of the database, with its
	// own Block Cache, and the VFS doesn't lock. Concurrent connections would
	// read stale blocks of one another and corrupt the database.
	db.SetMaxOpenConns(1)

	// Establish the connection now, surfacing configuration errors.
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.WithMessagef(err, "opening database %q", name)
	}

	log.WithFields(log.Fields{
		"vfs":  v.Name,
		"name": name,
	}).Debug("opened database")

	return db, nil
}

// URIForDB returns a SQLite URI of database |name| of VFS |vfsName|.
func URIForDB(vfsName, name string) string {
	var values = url.Values{
		"vfs":          {vfsName},
		"_synchronous": {"FULL"},
	}
	return "file:" + name + "?" + values.Encode()
}

// configureConn is the ConnectHook of DriverName connections.
func configureConn(conn *sqlite3.SQLiteConn) error {
	// page_size takes effect only if the database is empty. It's then
	// verified, to catch existing databases of another page size.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA page_size=%d", pagefile.BlockSize), nil); err != nil {
		return errors.WithMessage(err, "setting page_size")
	}
	if size, err := queryPragma(conn, "PRAGMA page_size"); err != nil {
		return err
	} else if size != fmt.Sprint(pagefile.BlockSize) {
		return errors.Errorf("database page_size is %s (expected %d)", size, pagefile.BlockSize)
	}

	if mode, err := queryPragma(conn, "PRAGMA journal_mode=MEMORY"); err != nil {
		return err
	} else if mode != "memory" {
		return errors.Errorf("journal_mode is %q (expected \"memory\")", mode)
	}

	if _, err := conn.Exec("PRAGMA temp_store=MEMORY", nil); err != nil {
		return errors.WithMessage(err, "setting temp_store")
	}
	return nil
}

// queryPragma returns the single value of a PRAGMA statement, as a string.
func queryPragma(conn *sqlite3.SQLiteConn, pragma string) (string, error) {
	var rows, err = conn.Query(pragma, nil)
	if err != nil {
		return "", errors.WithMessagef(err, "querying %q", pragma)
	}
	defer rows.Close()

	var dest = make([]driver.Value, 1)
	if err = rows.Next(dest); err != nil {
		return "", errors.WithMessagef(err, "reading %q", pragma)
	}

	switch v := dest[0].(type) {
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// SQLiteCompiledOptions returns the set of compile-time options that
// the linked SQLite library was built with. See https://www.sqlite.org/compile.html
// for a full listing. Note the "SQLITE_" prefix is dropped in the returned set.
func SQLiteCompiledOptions() (map[string]struct{}, error) {
	var db, err = sql.Open(DriverName, ":memory:")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query("PRAGMA compile_options;")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out = make(map[string]struct{})
	for rows.Next() {
		var opt string
		if err = rows.Scan(&opt); err != nil {
			return nil, err
		}
		out[opt] = struct{}{}
	}
	return out, rows.Err()
}

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{ConnectHook: configureConn})
}
