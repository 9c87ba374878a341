package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	mbp "go.gazette.dev/pagevfs/mainboilerplate"
	"go.gazette.dev/pagevfs/pagedb"
)

type cmdQuery struct {
	Database string `long:"database" short:"d" default:"main.db3" description:"Name of the database within the backing store"`
	Args     struct {
		SQL []string `positional-arg-name:"SQL" required:"1"`
	} `positional-args:"yes"`
}

func addCmdQuery(cmd *flags.Command) error {
	_, err := cmd.AddCommand("query", "Run SQL statements against a database", `
Run one or more SQL statements against a database of the backing store,
printing the rows of each as a table. The database is created if it doesn't
exist. Each statement runs in its own implicit transaction, and its changes
are durably written to the backing store when the statement completes.

Create a database in a local directory:
>    pagevfs query --backend.url file:///tmp/dbs/ \
>        "CREATE TABLE t (k TEXT PRIMARY KEY, v INTEGER)" \
>        "INSERT INTO t VALUES ('one', 1)"

Query it:
>    pagevfs query --backend.url file:///tmp/dbs/ "SELECT * FROM t"
`, &cmdQuery{})
	return err
}

func (cmd *cmdQuery) Execute([]string) error {
	defer startup()()

	var v, _, closeFn = baseCfg.Backend.MustVFS(context.Background())
	defer closeFn()

	var db, err = pagedb.Open(v, cmd.Database)
	mbp.Must(err, "failed to open database", "database", cmd.Database)
	defer db.Close()

	for _, stmt := range cmd.Args.SQL {
		if err = runQuery(os.Stdout, db, stmt); err != nil {
			return err
		}
	}
	return nil
}

// runQuery runs |stmt| and writes its rows, if any, as a table to |w|.
func runQuery(w io.Writer, db *sql.DB, stmt string) error {
	var rows, err = db.Query(stmt)
	if err != nil {
		return errors.WithMessagef(err, "running %q", stmt)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	} else if len(columns) == 0 {
		// Statement has no result rows. Step it to completion.
		for rows.Next() {
		}
		return rows.Err()
	}

	var table = tablewriter.NewWriter(w)
	var header = make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	table.Header(header...)

	var values = make([]interface{}, len(columns))
	var scan = make([]interface{}, len(columns))
	for i := range values {
		scan[i] = &values[i]
	}

	for rows.Next() {
		if err = rows.Scan(scan...); err != nil {
			return err
		}
		var row = make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		if err = table.Append(row); err != nil {
			return err
		}
	}
	if err = rows.Err(); err != nil {
		return errors.WithMessagef(err, "running %q", stmt)
	}
	return table.Render()
}

func formatValue(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(vv)
	default:
		return fmt.Sprint(vv)
	}
}
