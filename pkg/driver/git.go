package driver

import (
	"fmt"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GitRef names a file at a revision of a repository. URL is either a local
// repository directory or anything go-git can clone.
type GitRef struct {
	URL  string
	Rev  string // commit, branch, tag or any revision expression; HEAD when empty
	Path string // slash separated, relative to the repository root
}

func (r GitRef) String() string {
	return fmt.Sprintf("%s@%s:%s", r.URL, r.revision(), r.Path)
}

func (r GitRef) revision() plumbing.Revision {
	if rev := strings.TrimSpace(r.Rev); rev != "" {
		return plumbing.Revision(rev)
	}
	return plumbing.Revision(plumbing.HEAD)
}

// ReadGit reads a source file from a git revision.
func (l *Loader) ReadGit(ref GitRef) (*Source, error) {
	if ref.URL == "" || ref.Path == "" {
		return nil, fmt.Errorf("git: url and path are required")
	}
	repo, err := l.openRepo(ref.URL)
	if err != nil {
		return nil, err
	}
	revision := ref.revision()
	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		return nil, fmt.Errorf("git: resolve revision %s: %w", revision, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("git: commit %s: %w", hash, err)
	}
	file, err := commit.File(strings.TrimPrefix(ref.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("git: %s at %s: %w", ref.Path, hash, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("git: read %s: %w", ref.Path, err)
	}
	l.log.Debug().Str("url", ref.URL).Str("commit", hash.String()).Str("path", ref.Path).Msg("read source from git")
	return &Source{
		Name:     ref.String(),
		Data:     []byte(contents),
		Revision: hash.String(),
	}, nil
}

func (l *Loader) openRepo(url string) (*git.Repository, error) {
	if repo, ok := l.repos[url]; ok {
		return repo, nil
	}
	var (
		repo *git.Repository
		err  error
	)
	if info, statErr := os.Stat(url); statErr == nil && info.IsDir() {
		repo, err = git.PlainOpenWithOptions(url, &git.PlainOpenOptions{DetectDotGit: true})
		if err != nil {
			return nil, fmt.Errorf("git open %s: %w", url, err)
		}
	} else {
		repo, err = git.Clone(memory.NewStorage(), nil, &git.CloneOptions{URL: url})
		if err != nil {
			return nil, fmt.Errorf("git clone %s: %w", url, err)
		}
	}
	l.repos[url] = repo
	return repo, nil
}
