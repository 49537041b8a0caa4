package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Commit is a trimmed view of a version-control commit.
type Commit struct {
	Hash    string
	Message string
	When    time.Time
}

// SourceProvider reads commit and tag history for a local working copy.
type SourceProvider interface {
	Tags(ctx context.Context, path string) ([]string, error)
	RecentCommits(ctx context.Context, path string, limit int) ([]Commit, error)
}

// GitProvider implements SourceProvider over an on-disk git repository.
type GitProvider struct{}

// NewGitProvider constructs a GitProvider.
func NewGitProvider() *GitProvider {
	return &GitProvider{}
}

// Tags lists tag names with any release "v" prefix stripped, so they align
// with registry version strings.
func (p *GitProvider) Tags(ctx context.Context, path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("repository path is required")
	}
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	var tags []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := strings.TrimPrefix(ref.Name().Short(), "v")
		if name != "" {
			tags = append(tags, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// RecentCommits returns up to limit commits starting from HEAD.
func (p *GitProvider) RecentCommits(ctx context.Context, path string, limit int) ([]Commit, error) {
	if path == "" {
		return nil, fmt.Errorf("repository path is required")
	}
	if limit <= 0 {
		limit = 20
	}
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	commits := make([]Commit, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Message: strings.TrimSpace(c.Message),
			When:    c.Author.When,
		})
		if len(commits) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return commits, nil
}
