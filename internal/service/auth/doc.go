// Package auth verifies who may call the API: clients present an API key
// checked against a bcrypt hash, and the provider presents a signed callback
// token that was embedded in the callback URL at submission time.
package auth
