package integrations

import (
	"context"
	"fmt"

	"chat-tools-backend/git"
	"chat-tools-backend/pipeline"
	"chat-tools-backend/repo"
	"chat-tools-backend/session"
	"chat-tools-backend/tool"
	"chat-tools-backend/types"
)

type repoArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
}

type listDirectoryArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Path       string `json:"path,omitempty" jsonschema:"description=Directory inside the repository; empty for the root"`
	Ref        string `json:"ref,omitempty" jsonschema:"description=Branch or commit; defaults to the default branch"`
	Recursive  bool   `json:"recursive,omitempty" jsonschema:"description=List the whole subtree"`
}

type listCommitsArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Ref        string `json:"ref,omitempty" jsonschema:"description=Branch or commit"`
	Path       string `json:"path,omitempty" jsonschema:"description=Only commits touching this path"`
	Limit      int    `json:"limit,omitempty" jsonschema:"description=Maximum number of commits"`
}

type existsArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Path       string `json:"path,omitempty" jsonschema:"description=File or directory; empty checks the repository"`
	Ref        string `json:"ref,omitempty" jsonschema:"description=Branch or commit"`
}

type createBranchArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Name       string `json:"name" jsonschema:"description=New branch name"`
	From       string `json:"from,omitempty" jsonschema:"description=Source branch or commit; defaults to the default branch"`
}

type createPullRequestArgs struct {
	Repository  string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source_branch" jsonschema:"description=Branch with the changes"`
	Target      string `json:"target_branch,omitempty" jsonschema:"description=Branch to merge into; defaults to the default branch"`
}

type setDefaultBranchArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Branch     string `json:"branch"`
}

type fetchFileArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Path       string `json:"path" jsonschema:"description=File path inside the repository"`
	Ref        string `json:"ref,omitempty" jsonschema:"description=Branch or commit"`
	LocalPath  string `json:"local_path,omitempty" jsonschema:"description=Destination inside the workspace; defaults to the remote path"`
	SkipBinary bool   `json:"skip_binary,omitempty" jsonschema:"description=Skip images and other binary files"`
}

type ciRunsArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Branch     string `json:"branch,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type commitArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Scope      string `json:"scope,omitempty" jsonschema:"description=Only push workspace files under this repository directory"`
	Branch     string `json:"branch,omitempty" jsonschema:"description=Target branch; defaults to the default branch"`
	Message    string `json:"message,omitempty" jsonschema:"description=Commit message"`
}

type cloneArgs struct {
	Repository string `json:"repository" jsonschema:"description=Repository URL or GitHub owner/name"`
	Branch     string `json:"branch,omitempty"`
	Depth      int    `json:"depth,omitempty" jsonschema:"description=History depth; defaults to 1"`
}

// open parses the repository argument and opens it for the session.
func (k *Toolkit) open(ctx context.Context, sess *session.Session, repository string) (repo.Repository, error) {
	ref, err := repo.ParseRepository(repository)
	if err != nil {
		return nil, err
	}
	return k.deps.Opener.Open(ctx, sess, ref)
}

func (k *Toolkit) addRepositoryTools(set *tool.Set, sess *session.Session) {
	set.Add(tool.New("list_branches", "List the branches of a repository.",
		func(ctx context.Context, a repoArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			return r.ListBranches(ctx)
		}))

	set.Add(tool.New("list_directory", "List files and directories at a path. A path naming a file returns that file's metadata instead.",
		func(ctx context.Context, a listDirectoryArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			return r.ListDirectory(ctx, a.Path, a.Ref, a.Recursive)
		}))

	set.Add(tool.New("list_commits", "List recent commits.",
		func(ctx context.Context, a listCommitsArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			return r.ListCommits(ctx, a.Ref, a.Path, a.Limit)
		}))

	set.Add(tool.New("get_default_branch", "Get the default branch of a repository.",
		func(ctx context.Context, a repoArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			branch, err := r.DefaultBranch(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]string{"defaultBranch": branch}, nil
		}))

	set.Add(tool.New("check_exists", "Check whether a repository or a path inside it exists.",
		func(ctx context.Context, a existsArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			ok, err := r.Exists(ctx, a.Path, a.Ref)
			if err != nil {
				return nil, err
			}
			return map[string]any{"exists": ok, "path": a.Path}, nil
		}))

	set.Add(tool.New("create_branch", "Create a branch. Creating an existing branch is a no-op.",
		func(ctx context.Context, a createBranchArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			created, err := r.CreateBranch(ctx, a.Name, a.From)
			if err != nil {
				return nil, err
			}
			msg := fmt.Sprintf("Branch %s created", a.Name)
			if !created {
				msg = fmt.Sprintf("Branch %s already exists", a.Name)
			}
			return map[string]any{"created": created, "message": msg}, nil
		}))

	set.Add(tool.New("create_pull_request", "Open a pull request (merge request on GitLab).",
		func(ctx context.Context, a createPullRequestArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			target := a.Target
			if target == "" {
				if target, err = r.DefaultBranch(ctx); err != nil {
					return nil, err
				}
			}
			return r.CreatePullRequest(ctx, types.PullRequestInput{
				Source:      a.Source,
				Target:      target,
				Title:       a.Title,
				Description: a.Description,
			})
		}))

	set.Add(tool.New("set_default_branch", "Change the default branch of a repository.",
		func(ctx context.Context, a setDefaultBranchArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			if err := r.SetDefaultBranch(ctx, a.Branch); err != nil {
				return nil, err
			}
			return map[string]string{"defaultBranch": a.Branch}, nil
		}))

	set.Add(tool.New("fetch_file", "Download a repository file into the session workspace.",
		func(ctx context.Context, a fetchFileArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			return k.fetcher.Fetch(ctx, sess.ID, r, a.Path, a.Ref, a.LocalPath, a.SkipBinary)
		}))

	set.Add(tool.New("list_ci_runs", "List recent CI runs (workflow runs, pipelines or builds).",
		func(ctx context.Context, a ciRunsArgs) (any, error) {
			r, err := k.open(ctx, sess, a.Repository)
			if err != nil {
				return nil, err
			}
			return r.ListCIRuns(ctx, a.Branch, a.Limit)
		}))

	if k.deps.Pipeline != nil {
		set.Add(tool.New("commit_workspace", "Commit the workspace files to a branch as one commit, skipping files identical to the remote.",
			func(ctx context.Context, a commitArgs) (any, error) {
				ref, err := repo.ParseRepository(a.Repository)
				if err != nil {
					return nil, err
				}
				res, err := k.deps.Pipeline.Run(ctx, pipeline.Request{
					SessionID: sess.ID,
					Repo:      ref,
					Scope:     a.Scope,
					Branch:    a.Branch,
					Message:   a.Message,
				})
				if err != nil {
					return nil, err
				}
				return res, nil
			}))
	}

	set.Add(tool.New("clone_repository", "Clone a repository into the session workspace under a folder named after it.",
		func(ctx context.Context, a cloneArgs) (any, error) {
			ref, err := repo.ParseRepository(a.Repository)
			if err != nil {
				return nil, err
			}
			dir, err := k.deps.Store.Workspaces().Resolve(sess.ID, ref.Name)
			if err != nil {
				return nil, err
			}
			opts := git.CloneOptions{URL: repo.CloneURL(ref), Branch: a.Branch, Dir: dir, Depth: a.Depth}
			if opts.Depth <= 0 {
				opts.Depth = 1
			}
			if k.deps.Credentials != nil {
				tok, err := k.deps.Credentials.Token(ctx, sess, ref.Provider)
				if err != nil {
					return nil, err
				}
				opts.Token = tok.Value
				opts.Username = git.BasicAuthUsername(ref.Provider)
			}
			return git.Clone(ctx, opts)
		}))
}
