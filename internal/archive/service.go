// Package archive keeps a per-project git repository recording every stage
// submission, so the full revision history of a project survives rejections
// and resubmissions.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Submission is the snapshot committed for one stage submission.
type Submission struct {
	StageNumber int             `json:"stageNumber"`
	StageName   string          `json:"stageName"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Similarity  json.RawMessage `json:"similarity,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// CommitInfo describes one archived revision.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureProjectArchive initializes the project's repository if it does not
// exist yet. Safe to call on every submission.
func (s *Service) EnsureProjectArchive(projectID, author string) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(projectID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat archive path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	readme := fmt.Sprintf("Submission archive for project %s\n", projectID)
	if err := os.WriteFile(filepath.Join(path, "README.md"), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("write archive readme: %w", err)
	}
	if _, err := worktree.Add("README.md"); err != nil {
		return fmt.Errorf("git add readme: %w", err)
	}
	hash, err := worktree.Commit("Create project archive", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit archive baseline: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitSubmission writes the submission snapshot for its stage and commits
// it. Resubmissions of the same stage produce new commits over the same
// file, so the history holds every attempt.
func (s *Service) CommitSubmission(projectID string, submission Submission, author, message string) (CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(projectID)
	repo, err := git.PlainOpen(path)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open archive: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(submission, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal submission: %w", err)
	}

	filename := fmt.Sprintf("stage-%d.json", submission.StageNumber)
	if err := os.WriteFile(filepath.Join(path, filename), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write submission file: %w", err)
	}
	if _, err := worktree.Add(filename); err != nil {
		return CommitInfo{}, fmt.Errorf("git add submission: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit submission: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History returns the newest-first commit log of a project archive.
func (s *Service) History(projectID string, limit int) ([]CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// StageRevisions returns every archived snapshot of one stage, newest first.
func (s *Service) StageRevisions(projectID string, stageNumber int) ([]Submission, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	filename := fmt.Sprintf("stage-%d.json", stageNumber)
	var revisions []Submission
	var lastHash string
	err = iter.ForEach(func(commitObj *object.Commit) error {
		file, err := commitObj.File(filename)
		if err != nil {
			return nil
		}
		// Skip commits that did not touch this stage's file.
		if file.Hash.String() == lastHash {
			return nil
		}
		lastHash = file.Hash.String()

		reader, err := file.Reader()
		if err != nil {
			return fmt.Errorf("open submission reader: %w", err)
		}
		defer reader.Close()

		raw, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("read submission bytes: %w", err)
		}
		var submission Submission
		if err := json.Unmarshal(raw, &submission); err != nil {
			return fmt.Errorf("decode archived submission: %w", err)
		}
		revisions = append(revisions, submission)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revisions, nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	return lock
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@archive.projectgate.local", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}
