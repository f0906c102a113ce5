// Package domain contains the core business entities of the image generation
// service: the generation task, its lifecycle state machine, and the request
// validation rules. It is independent of any storage or delivery mechanism.
//
// The state machine lives in GenerationTask.ApplyOutcome. Both the status
// poll path and the provider webhook path feed it a normalized Outcome, so the
// two channels can never disagree about what a transition means.
package domain
