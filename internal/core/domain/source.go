package domain

import "time"

// SourceFile is one raw document as enumerated by a document source.
type SourceFile struct {
	// Path is the source-relative path, used for retrieval and as the
	// deterministic tie-break for racing publishers.
	Path string

	// Modified is the source's last-modified marker.
	Modified time.Time
}
