// Package harness runs scripted tasting sessions against a recipe.
//
// A scenario alternates loop runs with the feedback a person would give
// between cups, then asserts on the resulting trials. It exercises the
// real loop, session, sampler and in-memory backend end to end.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: coffee_tasting
//	description: "Seeded first cup, then feedback reopens the gate"
//	recipe: coffee            # built-in ID or .cue path relative to the file
//	generate_limit: 2         # optional
//	sampler: {seed: 42}       # optional
//	steps:
//	  - run: 3                # run the loop for up to 3 trials
//	  - prefer: [1, 0]        # trial 1 tasted better than trial 0
//	  - skip: 2
//	assertions:
//	  - type: trial_count
//	    count: 3
//	  - type: param_equals
//	    trial: 0
//	    param: waterTemp
//	    value: 86
//
// A run step stops early, without failing, as soon as the generation gate
// closes. The trace records which trials each run produced.
//
// # Assertion Types
//
//   - trial_count: the study has exactly count trials
//   - trial_state: trial is in state (pending, running, completed)
//   - param_equals: trial's param equals value
//   - note_contains: trial's note contains text
//   - gate: whether the gate is open after the last step
//
// # Golden Files
//
// RunWithGolden compares the trace and trial summary (never sampled values)
// against testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
