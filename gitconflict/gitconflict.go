// Package gitconflict reads the three sides of a merge conflict from the
// git index using go-git.
package gitconflict

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

var (
	ErrNotConflicted = errors.New("path has no conflict stages")
	ErrNoMergeHead   = errors.New("no merge in progress")
)

// mergeHead is the ref git writes while a merge is in progress
const mergeHead plumbing.ReferenceName = "MERGE_HEAD"

// Stages holds the contents of the index stages for one path
type Stages struct {
	Path     string
	Base     string // stage 1, empty for add/add conflicts
	Current  string // stage 2, ours
	Incoming string // stage 3, theirs
	HasBase  bool
}

// Heads summarizes the two commits being merged
type Heads struct {
	Ours   string
	Theirs string
}

// Open opens the repository containing path, walking up to its .git
func Open(path string) (*git.Repository, string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, "", fmt.Errorf("opening repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, "", fmt.Errorf("opening worktree: %w", err)
	}
	return repo, wt.Filesystem.Root(), nil
}

// Load reads base, current and incoming for path from the index of the
// repository at repoPath. path may be absolute or relative to repoPath.
func Load(repoPath, path string) (*Stages, error) {
	repo, root, err := Open(repoPath)
	if err != nil {
		return nil, err
	}
	name, err := indexName(root, path)
	if err != nil {
		return nil, err
	}

	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	stages := &Stages{Path: name}
	var found bool
	for _, e := range idx.Entries {
		if e.Name != name || e.Stage == index.Merged {
			continue
		}
		content, err := readBlob(repo, e.Hash)
		if err != nil {
			return nil, fmt.Errorf("reading stage %d of %s: %w", e.Stage, name, err)
		}
		switch e.Stage {
		case index.AncestorMode:
			stages.Base = content
			stages.HasBase = true
		case index.OurMode:
			stages.Current = content
			found = true
		case index.TheirMode:
			stages.Incoming = content
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", name, ErrNotConflicted)
	}
	return stages, nil
}

// Conflicted lists the paths with unmerged index entries
func Conflicted(repoPath string) ([]string, error) {
	repo, _, err := Open(repoPath)
	if err != nil {
		return nil, err
	}
	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, e := range idx.Entries {
		if e.Stage == index.Merged {
			continue
		}
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		paths = append(paths, e.Name)
	}
	return paths, nil
}

// LoadHeads returns the first lines of the HEAD and MERGE_HEAD commit messages
func LoadHeads(repoPath string) (*Heads, error) {
	repo, _, err := Open(repoPath)
	if err != nil {
		return nil, err
	}

	ours, err := subject(repo, plumbing.HEAD)
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	theirs, err := subject(repo, mergeHead)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNoMergeHead
	}
	if err != nil {
		return nil, fmt.Errorf("resolving MERGE_HEAD: %w", err)
	}
	return &Heads{Ours: ours, Theirs: theirs}, nil
}

func subject(repo *git.Repository, name plumbing.ReferenceName) (string, error) {
	ref, err := repo.Reference(name, true)
	if err != nil {
		return "", err
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return "", fmt.Errorf("getting commit: %w", err)
	}
	line, _, _ := strings.Cut(commit.Message, "\n")
	return fmt.Sprintf("%s %s", ref.Hash().String()[:7], strings.TrimSpace(line)), nil
}

func readBlob(repo *git.Repository, hash plumbing.Hash) (string, error) {
	blob, err := repo.BlobObject(hash)
	if err != nil {
		return "", err
	}
	reader, err := blob.Reader()
	if err != nil {
		return "", err
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func indexName(root, path string) (string, error) {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", path, err)
		}
		if strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("%s is outside %s", path, root)
		}
		path = rel
	}
	return filepath.ToSlash(filepath.Clean(path)), nil
}
