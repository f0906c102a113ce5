// Package nanobanana implements generation.Provider against the NanoBanana
// HTTP API using a go-resty client.
//
// Submissions are sent exactly once. Status lookups retry on transport
// errors, 429 and 5xx answers, up to the configured retry count.
package nanobanana
