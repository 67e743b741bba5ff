// Package gitlab provides the GitLab repository adapter for GitLab.com and
// self-hosted instances:
//   - URL parsing and normalization
//   - v4 API reads with X-Next-Page pagination
//   - branch, merge request and default-branch writes
//   - single-commit pushes through the Commits API
package gitlab
