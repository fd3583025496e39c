package verbump

import (
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
)

var testSignature = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  time.Now(),
}

// testRepoCreate creates a new in-memory git repository for testing
func testRepoCreate() (*git.Repository, error) {
	storage := memory.NewStorage()
	fs := memfs.New()
	return git.Init(storage, fs)
}

// testRepoFSCreate creates a new filesystem-based git repository for testing,
// with its metadata under path/.git
func testRepoFSCreate(path string) (*git.Repository, error) {
	fs := osfs.New(path)
	storage := filesystem.NewStorage(osfs.New(filepath.Join(path, ".git")), cache.NewObjectLRUDefault())
	return git.Init(storage, fs)
}

// testCommit writes a file and commits it with the given message
func testCommit(repo *git.Repository, filename, message string) (plumbing.Hash, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if err := writeFile(workTree.Filesystem, filename, message); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := workTree.Add(filename); err != nil {
		return plumbing.ZeroHash, err
	}

	return workTree.Commit(message, &git.CommitOptions{Author: testSignature})
}

// testCheckout switches the worktree to a branch, creating it when asked
func testCheckout(repo *git.Repository, branch string, create bool) error {
	workTree, err := repo.Worktree()
	if err != nil {
		return err
	}
	return workTree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
		Keep:   true,
	})
}

// testMerge records a merge of tip into the current branch, the way a pull
// request merge shows up in history
func testMerge(repo *git.Repository, tip plumbing.Hash, message string) (plumbing.Hash, error) {
	head, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	workTree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return workTree.Commit(message, &git.CommitOptions{
		Author:            testSignature,
		Parents:           []plumbing.Hash{head.Hash(), tip},
		AllowEmptyCommits: true,
	})
}

// testFeatureMerge commits featureMessage on a short-lived branch and merges
// it into base with mergeMessage
func testFeatureMerge(repo *git.Repository, base, feature, featureMessage, mergeMessage string) (plumbing.Hash, error) {
	if err := testCheckout(repo, feature, true); err != nil {
		return plumbing.ZeroHash, err
	}
	tip, err := testCommit(repo, feature+".txt", featureMessage)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := testCheckout(repo, base, false); err != nil {
		return plumbing.ZeroHash, err
	}
	return testMerge(repo, tip, mergeMessage)
}

// testAnnotatedTag creates an annotated tag object pointing at hash
func testAnnotatedTag(repo *git.Repository, name string, hash plumbing.Hash) error {
	_, err := repo.CreateTag(name, hash, &git.CreateTagOptions{
		Tagger:  testSignature,
		Message: "Release " + name,
	})
	return err
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}
