// Package database embeds the SQL assets applied to the main database.
package database

import _ "embed"

// TenantDatabasesSQL creates the tenant registry table and its indexes.
//
//go:embed tenant_databases.sql
var TenantDatabasesSQL string
