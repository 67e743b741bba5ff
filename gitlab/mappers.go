package gitlab

import (
	"time"

	"chat-tools-backend/types"
)

// MapBranchToCommon converts a GitLab branch to the common Branch type
func MapBranchToCommon(b Branch) types.Branch {
	return types.Branch{
		Name:      b.Name,
		Protected: b.Protected,
		Default:   b.Default,
		Commit:    MapCommitToCommon(b.Commit),
	}
}

// MapCommitToCommon converts a GitLab commit to the common CommitInfo type
func MapCommitToCommon(c Commit) types.CommitInfo {
	info := types.CommitInfo{
		SHA:     c.ID,
		Message: c.Title,
		Author:  c.AuthorName,
	}
	if !c.CommittedDate.IsZero() {
		info.Timestamp = c.CommittedDate.Format(time.RFC3339)
	}
	return info
}

// MapTreeEntryToCommon converts a GitLab tree entry to the common TreeEntry type
func MapTreeEntryToCommon(e TreeEntry) types.TreeEntry {
	return types.TreeEntry{
		Name: e.Name,
		Path: e.Path,
		Type: e.Type,
		Mode: e.Mode,
		SHA:  e.ID,
	}
}

// MapFileToCommon converts file metadata to the common TreeEntry type
func MapFileToCommon(f *FileContent) types.TreeEntry {
	return types.TreeEntry{
		Name: f.FileName,
		Path: f.FilePath,
		Type: types.EntryBlob,
		SHA:  f.BlobID,
		Size: f.Size,
	}
}

func mapPipeline(p pipeline) types.CIRun {
	return types.CIRun{
		ID:        itoa64(p.ID),
		Name:      p.Source,
		Status:    p.Status,
		Ref:       p.Ref,
		CommitSHA: p.SHA,
		URL:       p.WebURL,
		CreatedAt: p.CreatedAt,
	}
}
