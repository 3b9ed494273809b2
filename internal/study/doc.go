// Package study owns the lifecycle of a named, persisted experiment.
//
// A Session wraps one Study held by a Backend (the optimizer and storage
// collaborator). It resumes or creates the study, seeds a default trial
// into an empty study, answers the generation gate, issues trials and
// persists each trial's note.
//
// A Trial is the handle the orchestration loop samples through: it
// implements space.Resolver, so space.Space.Sample(ctx, name, trial) asks
// the backend for a value and records it on the trial.
//
// Thread-safety: a Session and its Trials are driven by a single loop
// goroutine. Running two sessions against the same study identity is not
// supported.
package study
