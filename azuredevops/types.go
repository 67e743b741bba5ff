package azuredevops

import "time"

// zeroObjectID is the oldObjectId used when creating a ref.
const zeroObjectID = "0000000000000000000000000000000000000000"

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

type gitRef struct {
	Name     string `json:"name"` // refs/heads/main
	ObjectID string `json:"objectId"`
	IsLocked bool   `json:"isLocked"`
}

type repository struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch"` // refs/heads/main
	WebURL        string `json:"webUrl"`
}

type item struct {
	ObjectID      string `json:"objectId"`
	GitObjectType string `json:"gitObjectType"` // blob, tree
	Path          string `json:"path"`          // always starts with "/"
	IsFolder      bool   `json:"isFolder"`
	Size          int64  `json:"size"`
}

type commit struct {
	CommitID string `json:"commitId"`
	Comment  string `json:"comment"`
	Author   struct {
		Name string    `json:"name"`
		Date time.Time `json:"date"`
	} `json:"author"`
}

type refUpdate struct {
	Name        string `json:"name"`
	OldObjectID string `json:"oldObjectId"`
	NewObjectID string `json:"newObjectId,omitempty"`
}

type refUpdateResult struct {
	Name          string `json:"name"`
	Success       bool   `json:"success"`
	UpdateStatus  string `json:"updateStatus"`
	CustomMessage string `json:"customMessage"`
}

type pushChange struct {
	ChangeType string `json:"changeType"` // add, edit
	Item       struct {
		Path string `json:"path"`
	} `json:"item"`
	NewContent struct {
		Content     string `json:"content"`
		ContentType string `json:"contentType"` // base64encoded
	} `json:"newContent"`
}

type pushCommit struct {
	Comment string       `json:"comment"`
	Changes []pushChange `json:"changes"`
}

type pushRequest struct {
	RefUpdates []refUpdate  `json:"refUpdates"`
	Commits    []pushCommit `json:"commits"`
}

type pushResponse struct {
	PushID  int `json:"pushId"`
	Commits []struct {
		CommitID string `json:"commitId"`
	} `json:"commits"`
	RefUpdates []refUpdateResult `json:"refUpdates"`
}

type pullRequest struct {
	PullRequestID int    `json:"pullRequestId"`
	Status        string `json:"status"`
}

type build struct {
	ID            int64     `json:"id"`
	BuildNumber   string    `json:"buildNumber"`
	Status        string    `json:"status"`
	Result        string    `json:"result"`
	SourceBranch  string    `json:"sourceBranch"`
	SourceVersion string    `json:"sourceVersion"`
	QueueTime     time.Time `json:"queueTime"`
	Definition    struct {
		Name string `json:"name"`
	} `json:"definition"`
	Links struct {
		Web struct {
			Href string `json:"href"`
		} `json:"web"`
	} `json:"_links"`
}
