// Package space defines the tunable parameters of a study and the
// discretisation rules their values must obey.
//
// A Space is an ordered mapping from parameter name to ParameterSpec.
// Declaration order is significant: the orchestration loop samples
// parameters in that order and the note renderer lists them in it.
//
// Parameter names are the join key between a trial's seeded values, its
// sampled values and any stored history. Names are NFC-normalised on the
// way in so that visually identical names typed in different Unicode forms
// resolve to the same parameter. Renaming a parameter is a breaking change;
// CheckCompatible reports it instead of silently orphaning old trials.
//
// # Grids
//
// A Continuous spec allows the values Min + k*Step, k >= 0, clipped to
// [Min, Max]. Define rejects a Step that does not evenly divide Max-Min
// unless the Space was built with WithTruncatedRanges, in which case Max is
// lowered to the last grid point.
//
// The space never picks values. Sample asks a Resolver (a trial) for a
// value and only checks that the answer is inside the domain.
package space
