// Package archive keeps every generated Lampiran G in a git repository, one
// branch per reporting period, so successive runs of the same month can be
// compared commit by commit.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"lampiran/api/internal/classify"
)

const (
	reportFile = "lampiran.json"
	mainBranch = "main"
)

var periodName = regexp.MustCompile(`^\d{4}-\d{2}$`)

var ErrUnknownPeriod = errors.New("no archived report for period")

// Snapshot is the archived content of one run.
type Snapshot struct {
	RunID     string          `json:"runId"`
	Period    string          `json:"period"`
	CreatedBy string          `json:"createdBy"`
	Report    classify.Report `json:"report"`
}

// Commit describes one archived run.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Archive struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Archive {
	return &Archive{dir: dir}
}

// Period is the reporting period of a run: the year and month its
// processing window ends in.
func Period(kmEnd time.Time) string {
	return kmEnd.Format("2006-01")
}

// Record commits snap on its period branch. Reruns with identical content
// still produce a commit so every run has a hash.
func (a *Archive) Record(snap Snapshot) (Commit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if snap.Period == "" {
		return Commit{}, fmt.Errorf("snapshot for run %s has no period", snap.RunID)
	}
	repo, err := a.open()
	if err != nil {
		return Commit{}, err
	}
	if err := checkoutPeriod(repo, snap.Period); err != nil {
		return Commit{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Commit{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.dir, reportFile), append(payload, '\n'), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", reportFile, err)
	}
	if _, err := worktree.Add(reportFile); err != nil {
		return Commit{}, fmt.Errorf("git add report: %w", err)
	}

	message := fmt.Sprintf("Lampiran G %s (%d rows)\n\nrun: %s", snap.Period, snap.Report.Total(), snap.RunID)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(snap.CreatedBy),
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit report: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// History lists the commits of a period, newest first. The initial archive
// commit is not included.
func (a *Archive) History(period string, limit int) ([]Commit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := a.open()
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(period), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrUnknownPeriod
	}
	if err != nil {
		return nil, fmt.Errorf("resolve period %s: %w", period, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		if commitObj.NumParents() == 0 {
			return io.EOF
		}
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ReportAt loads the snapshot stored at a full or abbreviated commit hash.
func (a *Archive) ReportAt(hash string) (Snapshot, Commit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := a.open()
	if err != nil {
		return Snapshot{}, Commit{}, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, Commit{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Snapshot{}, Commit{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	snap, err := readSnapshot(commitObj)
	if err != nil {
		return Snapshot{}, Commit{}, err
	}
	return snap, toCommit(commitObj), nil
}

// Periods lists the archived periods in ascending order. Branches that are
// not named like a period are ignored.
func (a *Archive) Periods() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := a.open()
	if err != nil {
		return nil, err
	}
	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer iter.Close()

	var periods []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if name := ref.Name().Short(); periodName.MatchString(name) {
			periods = append(periods, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	sort.Strings(periods)
	return periods, nil
}

// open returns the archive repository, creating it with an empty initial
// commit on main the first time.
func (a *Archive) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(a.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(a.dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(mainBranch)},
	})
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Commit("Initialize Lampiran G archive", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature("lampiran"),
	}); err != nil {
		return nil, fmt.Errorf("commit archive baseline: %w", err)
	}
	return repo, nil
}

// checkoutPeriod switches the worktree to the period branch. New periods
// branch from main so they never inherit another month's report.
func checkoutPeriod(repo *git.Repository, period string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(period)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("resolve period %s: %w", period, err)
		}
		mainRef, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
		if err != nil {
			return fmt.Errorf("resolve main: %w", err)
		}
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Hash: mainRef.Hash(), Create: true, Force: true}); err != nil {
			return fmt.Errorf("create period branch %s: %w", period, err)
		}
		return nil
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout period %s: %w", period, err)
	}
	return nil
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(reportFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", reportFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read report: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(contents), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode report: %w", err)
	}
	return snap, nil
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(name string) *object.Signature {
	if strings.TrimSpace(name) == "" {
		name = "lampiran"
	}
	return &object.Signature{
		Name:  name,
		Email: sanitizeEmail(name) + "@lampiran.local",
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range strings.ToLower(input) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
