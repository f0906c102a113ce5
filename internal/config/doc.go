// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to application settings needed by different components while keeping
// configuration details separate from business logic.
//
// Every key can be set through an environment variable named BANANA_ followed
// by the upper-cased key with dots replaced by underscores, for example
// BANANA_PROVIDER_API_KEY or BANANA_RATE_LIMIT_QUOTA.
package config
