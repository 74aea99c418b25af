package stow

import "context"

// CreateReport summarizes one archive creation.
type CreateReport struct {
	// Containers lists the container files written, grouped by worker in
	// sequence order.
	Containers []string

	// Written is the number of entries archived successfully.
	Written int

	// Failed maps archive names of failed entries to their errors.
	Failed map[string]error

	// Statuses holds the final status of every queued entry.
	Statuses map[string]FileStatus
}

// Create archives inputs into containers in outDir.
//
// Every input file or folder is stored under its base name; folders are
// walked recursively. Entries are spread over the configured number of
// workers, each writing its own stream of containers, and files larger
// than the space left in a container are split across several.
//
// A failure of one entry is reported in the CreateReport and does not
// stop the others.
func Create(ctx context.Context, inputs []string, outDir string, opts ...CreateOption) (*CreateReport, error) {
	j, err := NewJob(inputs, outDir, opts...)
	if err != nil {
		return nil, err
	}
	return j.Run(ctx)
}
