// Package service contains the application use cases that span several
// collaborators. The generation service owns task creation: validation,
// upload storage, provider submission and persistence, with uploads removed
// again whenever the request does not end in a stored task.
//
// Services receive their dependencies through constructor injection and
// depend on interfaces (store.TaskStore, generation.Provider), never on
// concrete infrastructure.
package service
