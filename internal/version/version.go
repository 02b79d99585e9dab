// Package version records the profiler's own release tag. No other
// package in this module reads Tag; the JSON format writes its own
// format.Version constant.
package version

// Tag is the current release tag. It is bumped by hand at release time;
// automated checks that its date precedes HEAD's belong to the release
// process, not the library itself.
const Tag = "v0.1.0"
