package stow

import (
	"github.com/opencontainers/go-digest"
)

// FileResult is the outcome of extracting one entry.
type FileResult struct {
	// Name is the archive name of the entry.
	Name string
	Type EntryType

	// Size is the number of content bytes recovered.
	Size int64

	// Digest is the SHA-256 digest of the recovered content. It is empty
	// for folders and failed files.
	Digest digest.Digest

	// Containers lists the containers the entry was read from, in chain order.
	Containers []string

	// Skipped is set when the output already existed and overwrite was off.
	Skipped bool

	Err error
}

// ExtractReport summarizes one extraction.
type ExtractReport struct {
	Files []FileResult

	// Explored lists every container that was read to the end.
	Explored []string

	// Ignored lists files in the scanned folders that are not containers
	// readable with the configured codec and key.
	Ignored []string
}

// Failed returns the results that carry an error.
func (r *ExtractReport) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Extracted returns the results of entries written to the output.
func (r *ExtractReport) Extracted() []FileResult {
	var ok []FileResult
	for _, f := range r.Files {
		if f.Err == nil && !f.Skipped {
			ok = append(ok, f)
		}
	}
	return ok
}

func (r *ExtractReport) merge(o *ExtractReport) {
	r.Files = append(r.Files, o.Files...)
	r.Explored = append(r.Explored, o.Explored...)
	r.Ignored = append(r.Ignored, o.Ignored...)
}
