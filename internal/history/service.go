// Package history keeps a git repository per itinerary with one commit per
// change, so a trip can be inspected as it was at any earlier point.
package history

import (
	"bytes"
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

	"github.com/tanmvo/relevance-ai-chat/internal/store"
)

const snapshotFile = "itinerary.json"

var ErrNoHistory = errors.New("no history")

type Item struct {
	Day         string  `json:"day"`
	TimeBlock   string  `json:"timeBlock"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
	SortOrder   int     `json:"sortOrder"`
}

type Snapshot struct {
	TripName    *string `json:"tripName"`
	Destination *string `json:"destination"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	Adults      int     `json:"adults"`
	Children    int     `json:"children"`
	Items       []Item  `json:"items"`
}

// FromStore captures the parts of an itinerary worth diffing. Ids and
// timestamps are left out so a no-op write produces no commit.
func FromStore(it store.Itinerary, items []store.ItineraryItem) Snapshot {
	snap := Snapshot{
		TripName:    it.TripName,
		Destination: it.Destination,
		StartDate:   it.StartDate,
		EndDate:     it.EndDate,
		Adults:      it.Adults,
		Children:    it.Children,
		Items:       make([]Item, 0, len(items)),
	}
	for _, item := range items {
		snap.Items = append(snap.Items, Item{
			Day:         item.Day,
			TimeBlock:   item.TimeBlock,
			Type:        item.Type,
			Name:        item.Name,
			Description: item.Description,
			Price:       item.Price,
			ImageURL:    item.ImageURL,
			SortOrder:   item.SortOrder,
		})
	}
	return snap
}

type Revision struct {
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

// Record commits snap as the newest revision of the itinerary. changed is
// false when the snapshot matches the current head and nothing was written.
func (s *Service) Record(itineraryID string, snap Snapshot, author, message string) (rev Revision, changed bool, err error) {
	lock := s.lock(itineraryID)
	lock.Lock()
	defer lock.Unlock()

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Revision{}, false, fmt.Errorf("marshal snapshot: %w", err)
	}
	payload = append(payload, '\n')

	repo, err := s.openOrInit(itineraryID)
	if err != nil {
		return Revision{}, false, err
	}

	if head, err := repo.Head(); err == nil {
		commitObj, err := repo.CommitObject(head.Hash())
		if err != nil {
			return Revision{}, false, fmt.Errorf("load head commit: %w", err)
		}
		current, err := readSnapshotBytes(commitObj)
		if err != nil {
			return Revision{}, false, err
		}
		if bytes.Equal(current, payload) {
			return toRevision(commitObj), false, nil
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return Revision{}, false, fmt.Errorf("resolve head: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), snapshotFile), payload, 0o644); err != nil {
		return Revision{}, false, fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return Revision{}, false, fmt.Errorf("git add snapshot: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: sanitizeEmail(author) + "@trips.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// Log lists revisions newest first. An itinerary that was never recorded has
// an empty log.
func (s *Service) Log(itineraryID string, limit int) ([]Revision, error) {
	lock := s.lock(itineraryID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(itineraryID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	revisions := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		revisions = append(revisions, toRevision(commitObj))
		if limit > 0 && len(revisions) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return revisions, nil
}

// Get returns the snapshot stored at a revision. hash may be abbreviated.
func (s *Service) Get(itineraryID, hash string) (Snapshot, Revision, error) {
	lock := s.lock(itineraryID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(itineraryID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Snapshot{}, Revision{}, ErrNoHistory
	}
	if err != nil {
		return Snapshot{}, Revision{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return Snapshot{}, Revision{}, fmt.Errorf("resolve revision %s: %w", hash, ErrNoHistory)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return Snapshot{}, Revision{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	raw, err := readSnapshotBytes(commitObj)
	if err != nil {
		return Snapshot{}, Revision{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, Revision{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, toRevision(commitObj), nil
}

// Remove deletes the repository for an itinerary whose chat was deleted.
func (s *Service) Remove(itineraryID string) error {
	lock := s.lock(itineraryID)
	lock.Lock()
	defer lock.Unlock()
	if err := os.RemoveAll(s.repoPath(itineraryID)); err != nil {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func (s *Service) openOrInit(itineraryID string) (*git.Repository, error) {
	path := s.repoPath(itineraryID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(itineraryID string) string {
	return filepath.Join(s.baseDir, itineraryID)
}

func (s *Service) lock(itineraryID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[itineraryID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[itineraryID] = lock
	}
	return lock
}

func readSnapshotBytes(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return raw, nil
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "assistant"
	}
	return string(out)
}
