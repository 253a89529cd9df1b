// Package driver implements a database/sql driver on top of the pipeline
// client, so SQL can be sent to a remote libSQL endpoint through the standard
// library or sqlx.
//
// Usage:
//
//  1. Import the driver package. This registers the driver with the name "libsql".
//     import _ "github.com/tomyedwab/libsqlhttp/libsql/driver"
//
//  2. Open a database with a connection string of the form "<baseUrl>;<bearerToken>":
//     db, err := sql.Open("libsql", "https://db.example.com/v2/pipeline;TOKEN")
//
//  3. Use the *sql.DB as usual. To pass a logger or HTTP client, build a
//     connector instead:
//     c, err := driver.NewConnector(dsn, client.WithLogger(logger))
//     db := sql.OpenDB(c)
//
// Placeholders:
//
// Statements use @name placeholders. Arguments passed with sql.Named bind by
// name; positional arguments bind @p0, @p1, ... in order. A statement without
// any @name placeholder may use ? and ?NNN instead, which are numbered onto
// @p0, @p1, ... before sending.
//
// Limitations:
//
//   - Every statement is its own HTTP request; nothing is held open between
//     calls.
//   - Transactions are local bookkeeping. Commit and Rollback do not reach the
//     server and statements run inside a transaction are applied immediately.
//   - Prepare does no server side work and NumInput returns -1.
//   - Result sets are fully buffered before the first row is returned.
package driver
