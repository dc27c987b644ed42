package vcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// setupTestRepo creates a repository with two commits touching state.txt
// and returns the client plus both commit hashes.
func setupTestRepo(t *testing.T) (*GitClient, string, string) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}

	commit := func(content, message string) string {
		if err := os.WriteFile(filepath.Join(dir, "state.txt"), []byte(content), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		if _, err := wt.Add("state.txt"); err != nil {
			t.Fatalf("add: %v", err)
		}
		hash, err := wt.Commit(message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  "test",
				Email: "test@example.com",
				When:  time.Now(),
			},
		})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		return hash.String()
	}

	first := commit("v1\n", "first")
	second := commit("v2\n", "second")

	client, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return client, first, second
}

func TestCurrentRevision(t *testing.T) {
	client, _, second := setupTestRepo(t)

	rev, err := client.CurrentRevision()
	if err != nil {
		t.Fatalf("current revision: %v", err)
	}
	if rev != second {
		t.Errorf("expected HEAD %s, got %s", second, rev)
	}
}

func TestCurrentBranch(t *testing.T) {
	client, _, _ := setupTestRepo(t)

	branch, err := client.CurrentBranch()
	if err != nil {
		t.Fatalf("current branch: %v", err)
	}
	if branch != "master" {
		t.Errorf("expected master, got %s", branch)
	}
}

func TestCheckoutRestoresWorktree(t *testing.T) {
	client, first, _ := setupTestRepo(t)

	if err := client.Checkout(first); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	rev, err := client.CurrentRevision()
	if err != nil {
		t.Fatalf("current revision: %v", err)
	}
	if rev != first {
		t.Errorf("expected HEAD %s after checkout, got %s", first, rev)
	}

	// Detached HEAD after checking out a raw hash.
	branch, err := client.CurrentBranch()
	if err != nil {
		t.Fatalf("current branch: %v", err)
	}
	if branch != "HEAD" {
		t.Errorf("expected detached HEAD, got %s", branch)
	}
}

func TestCheckoutUnknownRevision(t *testing.T) {
	client, _, _ := setupTestRepo(t)

	if err := client.Checkout("0000000000000000000000000000000000000000"); err == nil {
		t.Fatal("expected error for unknown revision")
	}
}

func TestOpenMissingRepository(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without a repository")
	}
}

func TestNopClient(t *testing.T) {
	var c Client = NopClient{}

	if rev, err := c.CurrentRevision(); err != nil || rev != "" {
		t.Errorf("expected empty revision, got %q err %v", rev, err)
	}
	if branch, err := c.CurrentBranch(); err != nil || branch != "" {
		t.Errorf("expected empty branch, got %q err %v", branch, err)
	}
	if err := c.Checkout("anything"); err != nil {
		t.Errorf("expected nop checkout, got %v", err)
	}
}
