package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"chat-tools-backend/keyedlock"
	"chat-tools-backend/logging"
	"chat-tools-backend/pathutil"
	"chat-tools-backend/workspace"

	"github.com/sirupsen/logrus"
)

var binaryExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true,
	".pdf": true, ".zip": true, ".gz": true, ".tgz": true, ".tar": true, ".7z": true, ".rar": true,
	".jar": true, ".war": true, ".class": true, ".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".o": true, ".a": true, ".bin": true, ".wasm": true, ".pyc": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".mov": true, ".avi": true, ".wav": true, ".ogg": true,
}

// textExt wins over binaryExt.
var textExt = map[string]bool{
	".svg": true, ".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true,
	".xml": true, ".html": true, ".css": true, ".csv": true,
}

// IsBinaryPath reports whether name looks like a binary file by its extension.
func IsBinaryPath(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	if textExt[ext] {
		return false
	}
	return binaryExt[ext]
}

// FetchResult describes one content fetch.
type FetchResult struct {
	Source    string `json:"source"`
	File      string `json:"file"`
	LocalPath string `json:"localPath,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reused    bool   `json:"reused,omitempty"`
	Message   string `json:"message"`
}

// Fetcher downloads remote files into session workspaces.
type Fetcher struct {
	locks      *keyedlock.Registry
	workspaces *workspace.Manager
	log        *logrus.Entry
}

// NewFetcher returns a Fetcher sharing the given lock registry and workspaces.
func NewFetcher(locks *keyedlock.Registry, workspaces *workspace.Manager) *Fetcher {
	return &Fetcher{locks: locks, workspaces: workspaces, log: logging.NewLogger("fetch")}
}

// Fetch downloads remotePath at ref from r into the workspace of sessionID at localRel
// (the remote path when empty). Concurrent fetches of the same source in one session
// collapse: a caller that waited behind another and finds the file present returns it
// without downloading.
func (f *Fetcher) Fetch(ctx context.Context, sessionID string, r Repository, remotePath, ref, localRel string, skipBinary bool) (FetchResult, error) {
	remote := pathutil.NormalizeSlashes(remotePath)
	if remote == "" {
		return FetchResult{}, fmt.Errorf("remote path is required")
	}
	if localRel == "" {
		localRel = remote
	}
	source := fmt.Sprintf("%s@%s:%s", r.Ref(), ref, remote)
	res := FetchResult{Source: source, File: localRel}

	if skipBinary && IsBinaryPath(remote) {
		res.Skipped = true
		res.Message = "Skipped: binary file"
		return res, nil
	}

	abs, err := f.workspaces.Resolve(sessionID, localRel)
	if err != nil {
		return FetchResult{}, err
	}
	res.LocalPath = abs

	release, waited := f.locks.AcquireContended(keyedlock.Key(sessionID, "fetch", source))
	defer release()

	if waited {
		if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
			res.Reused = true
			res.Bytes = int(info.Size())
			res.Message = "Already downloaded"
			return res, nil
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return FetchResult{}, err
		}
	}

	data, err := r.FileContent(ctx, remote, ref)
	if err != nil {
		return FetchResult{}, err
	}
	if _, err := f.workspaces.WriteFile(sessionID, localRel, data); err != nil {
		return FetchResult{}, err
	}
	f.log.WithFields(logrus.Fields{"session": sessionID, "source": source, "bytes": len(data)}).Debug("Fetched remote file")
	res.Bytes = len(data)
	res.Message = "Downloaded"
	return res, nil
}
