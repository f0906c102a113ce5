// Package generation defines the contract with the external image generation
// provider. It abstracts the details of the NanoBanana HTTP API, allowing the
// reconciliation engine and the creation flow to submit work and read status
// without coupling to a specific client.
//
// The concrete client lives in internal/platform/nanobanana.
package generation
