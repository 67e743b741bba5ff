package gitlab

import "time"

// Branch represents a Git branch in a GitLab repository
type Branch struct {
	Name      string `json:"name"`
	Commit    Commit `json:"commit"`
	Protected bool   `json:"protected"`
	Default   bool   `json:"default"`
}

// Commit represents commit information
type Commit struct {
	ID            string    `json:"id"`       // SHA
	ShortID       string    `json:"short_id"` // Short SHA
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	AuthorName    string    `json:"author_name"`
	AuthorEmail   string    `json:"author_email"`
	CommittedDate time.Time `json:"committed_date"`
}

// TreeEntry represents a file or directory entry in a GitLab repository tree
type TreeEntry struct {
	ID   string `json:"id"`   // Object SHA
	Name string `json:"name"` // File/directory name
	Type string `json:"type"` // "blob" or "tree"
	Path string `json:"path"` // Full path from repository root
	Mode string `json:"mode"` // File mode (e.g., "100644")
}

// FileContent represents the response from GitLab file content API
type FileContent struct {
	FileName     string `json:"file_name"`
	FilePath     string `json:"file_path"`
	Size         int64  `json:"size"`
	Encoding     string `json:"encoding"`
	Content      string `json:"content"`
	ContentSHA   string `json:"content_sha256"`
	Ref          string `json:"ref"`
	BlobID       string `json:"blob_id"`
	CommitID     string `json:"commit_id"`
	LastCommitID string `json:"last_commit_id"`
}

type project struct {
	ID                int    `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
}

type mergeRequest struct {
	IID    int    `json:"iid"`
	WebURL string `json:"web_url"`
	State  string `json:"state"`
}

type pipeline struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	Ref       string    `json:"ref"`
	SHA       string    `json:"sha"`
	WebURL    string    `json:"web_url"`
	CreatedAt time.Time `json:"created_at"`
}

// commitAction is one entry of a Commits API "actions" array.
type commitAction struct {
	Action       string `json:"action"` // create, update
	FilePath     string `json:"file_path"`
	Content      string `json:"content"`
	Encoding     string `json:"encoding"`
	LastCommitID string `json:"last_commit_id,omitempty"`
}
