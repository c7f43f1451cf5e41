// Package pipeline drives one compile cycle: transpile the app to Kotlin,
// resolve the change set against the dex cache, compile it to dex and
// reconcile the manifest and output directory with the outcome.
//
// Cycles run one at a time per Compiler. The Compiler owns the cache layout
// and is the only writer of the manifest and the dex mirror.
package pipeline
