// Package vcs provides the version control operations the checkpoint
// manager records and restores: current revision, current branch, and
// checkout of a recorded revision.
package vcs

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Client is the version control surface used by checkpointing.
type Client interface {
	// CurrentRevision returns the full hash of HEAD.
	CurrentRevision() (string, error)

	// CurrentBranch returns the short branch name of HEAD, or "HEAD"
	// when detached.
	CurrentBranch() (string, error)

	// Checkout moves the worktree to the given revision.
	Checkout(revision string) error
}

// GitClient implements Client over a local git repository.
type GitClient struct {
	repo *git.Repository
}

// Open opens the repository containing path. The .git directory is
// discovered by walking up from path.
func Open(path string) (*GitClient, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return &GitClient{repo: repo}, nil
}

// CurrentRevision returns the full hash of HEAD.
func (c *GitClient) CurrentRevision() (string, error) {
	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// CurrentBranch returns the short branch name of HEAD, or "HEAD" when
// the repository is in a detached state.
func (c *GitClient) CurrentBranch() (string, error) {
	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "HEAD", nil
}

// Checkout moves the worktree to the given revision. Local changes are
// discarded so the worktree matches the recorded state exactly.
func (c *GitClient) Checkout(revision string) error {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return fmt.Errorf("failed to resolve revision %s: %w", revision, err)
	}

	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", revision, err)
	}
	return nil
}

// NopClient is a Client for environments without a repository. It
// records empty revision metadata and treats checkout as a no-op.
type NopClient struct{}

// CurrentRevision returns an empty revision.
func (NopClient) CurrentRevision() (string, error) { return "", nil }

// CurrentBranch returns an empty branch name.
func (NopClient) CurrentBranch() (string, error) { return "", nil }

// Checkout does nothing.
func (NopClient) Checkout(string) error { return nil }
