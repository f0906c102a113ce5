// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing business rules to remain
// independent of specific database technologies or persistence details.
//
// Implementations live under internal/platform: postgres, sqlite (gorm)
// and memstore.
package store
