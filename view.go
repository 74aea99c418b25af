package stow

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// View lists the records of the container at path without extracting
// anything. Content is skipped.
//
// If the container header parses but no record follows it, View returns
// the empty listing together with ErrNoFilesRecovered; this usually means
// the container was written with another key.
func (e *Extractor) View(path string) (*ArchiveContents, error) {
	cr, err := openContainer(e.codec, path)
	if err != nil {
		return nil, err
	}
	contents := &ArchiveContents{Path: path, ID: cr.id, Version: cr.version}
	for {
		h, stored, err := cr.next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.log().Debug("stopped reading container", "path", path, "error", err)
			}
			break
		}
		contents.Files = append(contents.Files, FileContents{
			Index:     len(contents.Files),
			Fragment:  h.Fragment,
			Type:      h.Type,
			Name:      h.Name,
			Created:   h.Created,
			Modified:  h.Modified,
			Mode:      h.Permissions,
			Remaining: h.Remaining,
			Stored:    stored,
		})
		if err := cr.skip(stored); err != nil {
			e.log().Debug("stopped reading container", "path", path, "error", err)
			break
		}
	}
	if len(contents.Files) == 0 {
		return contents, fmt.Errorf("%w: %s", ErrNoFilesRecovered, path)
	}
	return contents, nil
}

// FolderContents is the listing of every container below a folder.
type FolderContents struct {
	Archives []*ArchiveContents

	// Ignored lists files that are not readable containers.
	Ignored []string
}

// ViewFolder lists every container below dir, breadth-first and in
// sequence order within each folder.
func (e *Extractor) ViewFolder(ctx context.Context, dir string) (*FolderContents, error) {
	fc := &FolderContents{}
	err := walkContainers(ctx, dir, "", func(path string) error {
		contents, err := e.View(path)
		if err != nil && !errors.Is(err, ErrNoFilesRecovered) {
			fc.Ignored = append(fc.Ignored, path)
			return nil
		}
		fc.Archives = append(fc.Archives, contents)
		return nil
	})
	return fc, err
}
