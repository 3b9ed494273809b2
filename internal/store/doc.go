// Package store provides SQLite-backed durable storage for studies.
//
// Tables:
//   - studies: one row per named study, with its search space descriptor
//     and opaque sampler configuration
//   - trials: per-study numbered trials moving pending -> running -> completed
//   - trial_params: sampled values, in sampling order
//   - preferences: pairwise human judgements between completed trials
//   - study_attrs: free-form key/value settings (feedback registration)
//
// Every mutation is a single statement or a single transaction, so a
// process stopped at any point leaves the database consistent. All reads
// order by trial number (then sampling position), never by wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
