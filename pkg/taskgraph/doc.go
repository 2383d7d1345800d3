// Package taskgraph implements the task registry and runner behind taskrun.
// Tasks are registered by name with prerequisites, an action and an optional list of
// follow-up steps. Running a task first runs its prerequisites, then its action and
// finally its steps, strictly one after another.
package taskgraph
