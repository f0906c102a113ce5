// Package postgres provides the PostgreSQL implementation of store.TaskStore.
// It talks to the database through database/sql with the pgx stdlib driver,
// stores list fields as JSONB, and ships its schema as goose migrations
// embedded in the binary.
package postgres
