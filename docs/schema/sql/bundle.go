// Package sqldocs exposes SQL fixtures directly from the docs tree.
package sqldocs

import _ "embed"

// Northwind creates and seeds the Northwind source tables the embedded
// anchor model maps from. Statements are separated by semicolons.
//
//go:embed northwind.sql
var Northwind string
