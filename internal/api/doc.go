// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// (and the image provider's webhooks) and the generation service and task
// engine, translating HTTP concerns to business operations.
package api
