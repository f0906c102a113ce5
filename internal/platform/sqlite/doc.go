// Package sqlite provides a gorm-backed store.TaskStore on SQLite, the
// default single-node database. The schema is managed with gorm AutoMigrate.
package sqlite
