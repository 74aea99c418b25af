// Package stow archives files and folders into a sequence of
// fixed-capacity containers and restores them from an unordered pool of
// those containers.
//
// Containers are written through a pluggable [codec.Codec]. When a file
// does not fit into the remaining capacity of a container, its bytes are
// split across as many containers as needed. Every container is
// self-describing: it starts with an ArchiveID (a stream identifier and a
// sequence number) from which the file name of the next container in the
// stream can be predicted, so extraction can follow a file's fragment
// chain across a folder of containers in any order.
//
// # Creating
//
// Create walks the inputs and writes them with several workers in
// parallel. Each worker owns its own container stream:
//
//	report, err := stow.Create(ctx, []string{"./photos"}, "./out",
//	    stow.CreateWithCodec("zstd"),
//	    stow.CreateWithCapacity(1<<20),
//	    stow.CreateWithKey([]byte("secret")),
//	)
//
// # Extracting
//
//	x, err := stow.NewExtractor(
//	    stow.ExtractWithCodec("zstd"),
//	    stow.ExtractWithKey([]byte("secret")),
//	)
//	report, err := x.ExtractFolder(ctx, "./out", "./restored")
//
// Failures that affect a single file, such as a container missing from
// the middle of its chain, are recorded in the report and do not stop the
// rest of the extraction.
package stow
