// Package task reconciles generation task state.
//
// The Engine merges the two channels a provider reports through: client
// status polls, which are throttled per task, and provider webhooks, which
// are applied unconditionally. Provider calls run on a bounded WorkerPool
// through ProviderPool, and a cron-driven Sweeper keeps running tasks moving
// when nobody polls them.
package task
