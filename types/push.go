package types

// ChangeType is the kind of file change in a push.
type ChangeType string

const (
	ChangeAdd  ChangeType = "add"
	ChangeEdit ChangeType = "edit"
)

// Change is one entry of a changeset. Path is the destination inside the repository and
// always starts with "/".
type Change struct {
	Path    string     `json:"path"`
	Type    ChangeType `json:"type"`
	Content []byte     `json:"-"`
}

// PushInput is a single-commit push expecting the branch to be at ExpectedTip.
type PushInput struct {
	Branch      string
	ExpectedTip string
	Message     string
	Changes     []Change
}

// FileResult describes what happened to one local workspace file.
type FileResult struct {
	File    string `json:"file"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// PushResult is the outcome of a commit/push pipeline run.
type PushResult struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Branch   string       `json:"branch,omitempty"`
	CommitID string       `json:"commitId,omitempty"`
	Results  []FileResult `json:"results"`
}
