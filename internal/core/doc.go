// Package core provides the domain models shared by the incremental app-x
// build pipeline.
//
// # Core Types
//
// CompileResult: the transpiler's report for one build invocation, threaded
// through the pipeline by value.
// ChangeSet: the ordered Kotlin sources submitted to the compiler in a cycle.
// Layout: the on-disk cache and output directories a cycle reads and writes.
//
// Paths that name Kotlin sources inside the cache are relative to
// Layout.SrcDir and always use forward slashes, so they can be used as
// manifest keys and artifact identities on every platform.
package core
