package core

// TargetType tags the language a CompileResult was produced for.
type TargetType string

// TargetKotlin is the only target the app-x pipeline produces.
const TargetKotlin TargetType = "kotlin"

// CompileResult is the transpiler output for one build invocation.
//
// Values are never mutated in place once handed to the pipeline. Stages
// derive a new value with WithChanged / WithKotlinc instead.
type CompileResult struct {
	// Filename is the entry Kotlin file, if the transpiler reported one.
	Filename string `json:"filename,omitempty"`

	// Changed lists source-relative Kotlin files that were produced or
	// modified. After a successful dex step it lists the produced dex
	// artifacts instead.
	Changed []string `json:"changed"`

	// Chunks lists additional split-output Kotlin files.
	Chunks []string `json:"chunks,omitempty"`

	// SourceMap is the directory the transpiler wrote source maps to.
	SourceMap string `json:"sourceMap,omitempty"`

	Type TargetType `json:"type"`

	// Kotlinc is set once bytecode compilation has been attempted.
	Kotlinc bool `json:"kotlinc"`
}

// WithChanged returns a copy of r whose Changed list is changed.
func (r CompileResult) WithChanged(changed []string) CompileResult {
	out := r.clone()
	out.Changed = append([]string{}, changed...)
	return out
}

// WithKotlinc returns a copy of r with the Kotlinc flag set to attempted.
func (r CompileResult) WithKotlinc(attempted bool) CompileResult {
	out := r.clone()
	out.Kotlinc = attempted
	return out
}

func (r CompileResult) clone() CompileResult {
	out := r
	out.Changed = append([]string(nil), r.Changed...)
	out.Chunks = append([]string(nil), r.Chunks...)
	if out.Type == "" {
		out.Type = TargetKotlin
	}
	return out
}

// ChangeSet is the ordered, deduplicated list of absolute Kotlin source
// paths submitted to the compiler in one cycle.
type ChangeSet []string

// Empty reports whether nothing needs compiling.
func (c ChangeSet) Empty() bool { return len(c) == 0 }
