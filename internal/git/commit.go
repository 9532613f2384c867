package git

import (
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// CommitInfo summarises the HEAD commit of a checkout.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
}

// ShortHash returns the first 7 characters of the hash.
func (c CommitInfo) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// UnknownCommit is returned when commit metadata cannot be read.
var UnknownCommit = CommitInfo{Hash: "unknown", Author: "unknown", Subject: "unknown"}

// CommitInfo reads HEAD of the repository at dir. Any failure is logged and yields UnknownCommit.
func (f *Fetcher) CommitInfo(dir string) CommitInfo {
	info, err := ReadCommitInfo(dir)
	if err != nil {
		f.logger.Warn("Failed to read commit info", logfields.Path(dir), logfields.Error(err))
		return UnknownCommit
	}
	return info
}

// ReadCommitInfo reads HEAD of the repository at dir.
func ReadCommitInfo(dir string) (CommitInfo, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return CommitInfo{}, err
	}
	head, err := repo.Head()
	if err != nil {
		return CommitInfo{}, err
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return CommitInfo{}, err
	}
	subject, _, _ := strings.Cut(strings.TrimSpace(commit.Message), "\n")
	if subject == "" {
		subject = "unknown"
	}
	return CommitInfo{
		Hash:      commit.Hash.String(),
		Author:    commit.Author.Name,
		Timestamp: commit.Author.When,
		Subject:   subject,
	}, nil
}

