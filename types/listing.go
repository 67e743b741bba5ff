package types

// ListingKind tags which variant of Listing is populated.
type ListingKind string

const (
	ListingDirectory ListingKind = "directory"
	ListingFile      ListingKind = "file"
)

// Listing is the normalized result of a directory listing. Providers answer the same
// request with either an array of entries or a single object when the path names a
// file; adapters fold both shapes into this variant. Errors are returned separately as
// *APIError, with 404 matching ErrNotFound.
type Listing struct {
	Kind    ListingKind `json:"kind"`
	Path    string      `json:"path"`
	Entries []TreeEntry `json:"entries,omitempty"`
	File    *TreeEntry  `json:"file,omitempty"`
}

// DirectoryListing builds the Directory variant.
func DirectoryListing(path string, entries []TreeEntry) Listing {
	if entries == nil {
		entries = []TreeEntry{}
	}
	return Listing{Kind: ListingDirectory, Path: path, Entries: entries}
}

// FileListing builds the File variant.
func FileListing(meta TreeEntry) Listing {
	return Listing{Kind: ListingFile, Path: meta.Path, File: &meta}
}

// IsDirectory reports whether the listed path is a directory.
func (l Listing) IsDirectory() bool { return l.Kind == ListingDirectory }
