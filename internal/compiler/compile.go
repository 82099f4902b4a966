package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/saifalharthi/materialize/internal/dataflow"
)

// LoadMode controls how errors are handled during compilation.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the dataflows compiled from a directory.
type LoadResult struct {
	Dataflows []dataflow.Dataflow
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred before compilation.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load error codes.
const (
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
)

// LoadDir loads the CUE package in dir and compiles every source, view
// and sink it declares.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	dataflows, errs := Compile(value, mode)
	return &LoadResult{
		Dataflows: dataflows,
		CUEValue:  value,
		FileCount: len(cueFiles),
	}, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Compile compiles every entry under the top-level source, view and sink
// structs of v. Sources come first, then views, then sinks, each in
// declaration order. View descs are collected before any expression is
// compiled, so a view may read a view declared after it.
func Compile(v cue.Value, mode LoadMode) ([]dataflow.Dataflow, []error) {
	var (
		out  []dataflow.Dataflow
		errs []error
	)
	rels := Relations{}
	kinds := map[string]string{}

	// fail records err and reports whether compilation must stop.
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}
	claim := func(kind string, entry cue.Value) error {
		name := labelOf(entry)
		if prev, ok := kinds[name]; ok {
			return compileErrorf(kind, entry.Pos(), "%q already declared as a %s", name, prev)
		}
		kinds[name] = kind
		return nil
	}

	sources, err := entries(v, "source")
	if err != nil && fail(err) {
		return out, errs
	}
	views, err := entries(v, "view")
	if err != nil && fail(err) {
		return out, errs
	}
	sinks, err := entries(v, "sink")
	if err != nil && fail(err) {
		return out, errs
	}

	for _, entry := range sources {
		if err := claim("source", entry); err != nil {
			if fail(err) {
				return out, errs
			}
			continue
		}
		src, err := CompileSource(entry)
		if err != nil {
			if fail(err) {
				return out, errs
			}
			continue
		}
		rels[src.Name()] = src.Desc()
		out = append(out, src)
	}

	for _, entry := range views {
		if err := claim("view", entry); err != nil {
			if fail(err) {
				return out, errs
			}
			continue
		}
		if desc, ok, err := lookupDesc(entry); err == nil && ok {
			rels[labelOf(entry)] = desc
		}
	}
	for _, entry := range views {
		if kinds[labelOf(entry)] != "view" {
			continue
		}
		view, err := CompileView(entry, rels)
		if err != nil {
			if fail(err) {
				return out, errs
			}
			continue
		}
		out = append(out, view)
	}

	for _, entry := range sinks {
		if err := claim("sink", entry); err != nil {
			if fail(err) {
				return out, errs
			}
			continue
		}
		sink, err := CompileSink(entry, rels)
		if err != nil {
			if fail(err) {
				return out, errs
			}
			continue
		}
		out = append(out, sink)
	}

	if len(out) == 0 && len(errs) == 0 {
		errs = append(errs, compileErrorf("catalog", v.Pos(), "catalog declares no dataflows"))
	}
	return out, errs
}

// entries returns the values of every field under the top-level struct
// named kind, in declaration order. A missing struct has no entries.
func entries(v cue.Value, kind string) ([]cue.Value, error) {
	kv := v.LookupPath(cue.ParsePath(kind))
	if !kv.Exists() {
		return nil, nil
	}
	iter, err := kv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []cue.Value
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out, nil
}
