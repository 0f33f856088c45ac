// Package memory is an in-process implementation of repository.Store.
//
// Profiles live in an arena keyed by id. Each record carries its own
// semaphore.Weighted(1), used as a context-aware mutex: an operation that
// touches two profiles acquires both records in lexicographic id order, so two
// operations on the same pair can never deadlock, and a caller whose context
// expires while waiting gets apperror.Transient instead of hanging.
//
// The store-level RWMutex only guards the indexes (arena map, insertion order,
// username/email/github lookups). It is never held while waiting on a record.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/semaphore"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type record struct {
	sem *semaphore.Weighted
	p   model.Profile // guarded by sem
}

type outboxRow struct {
	entry     model.OutboxEntry
	published bool
}

// Store is the in-memory arena.
type Store struct {
	mu        sync.RWMutex
	records   map[string]*record
	order     []string // profile ids in creation order
	usernames map[string]string
	accounts  map[string]*model.Account
	emails    map[string]string
	githubIDs map[int64]string

	outboxMu sync.Mutex
	outbox   []*outboxRow
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records:   make(map[string]*record),
		usernames: make(map[string]string),
		accounts:  make(map[string]*model.Account),
		emails:    make(map[string]string),
		githubIDs: make(map[int64]string),
	}
}

// Close is a no-op; it satisfies repository.Store.
func (s *Store) Close() error { return nil }

func (s *Store) record(id string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// lock acquires the records for ids in sorted order and returns them in the
// order of ids plus a release func. Missing ids fail with NotFound before any
// lock is taken.
func (s *Store) lock(ctx context.Context, op string, ids ...string) ([]*record, func(), error) {
	recs := make([]*record, len(ids))
	for i, id := range ids {
		r, ok := s.record(id)
		if !ok {
			return nil, nil, apperror.NotFound("profile", id)
		}
		recs[i] = r
	}

	sorted := slices.Clone(ids)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)

	acquired := make([]*record, 0, len(sorted))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].sem.Release(1)
		}
	}
	for _, id := range sorted {
		r, _ := s.record(id)
		if err := r.sem.Acquire(ctx, 1); err != nil {
			release()
			return nil, nil, apperror.Transient(op, err)
		}
		acquired = append(acquired, r)
	}
	return recs, release, nil
}

// snapshot copies one profile under its lock.
func (s *Store) snapshot(ctx context.Context, op, id string) (*model.Profile, error) {
	recs, release, err := s.lock(ctx, op, id)
	if err != nil {
		return nil, err
	}
	defer release()
	return clone(&recs[0].p), nil
}

func clone(p *model.Profile) *model.Profile {
	c := *p
	c.Followers = slices.Clone(p.Followers)
	c.Following = slices.Clone(p.Following)
	c.PendingRequests = slices.Clone(p.PendingRequests)
	c.Posts = slices.Clone(p.Posts)
	if c.Followers == nil {
		c.Followers = []string{}
	}
	if c.Following == nil {
		c.Following = []string{}
	}
	if c.PendingRequests == nil {
		c.PendingRequests = []string{}
	}
	if c.Posts == nil {
		c.Posts = []model.Post{}
	}
	return &c
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

func (s *Store) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	return s.snapshot(ctx, "get profile", id)
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*model.Profile, error) {
	s.mu.RLock()
	id, ok := s.usernames[username]
	s.mu.RUnlock()
	if !ok {
		return nil, apperror.ProfileNotFound(username)
	}
	return s.snapshot(ctx, "get profile", id)
}

func (s *Store) Summaries(ctx context.Context, ids []string) ([]model.ProfileSummary, error) {
	out := make([]model.ProfileSummary, 0, len(ids))
	for _, id := range ids {
		p, err := s.snapshot(ctx, "profile summaries", id)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p.Summary())
	}
	return out, nil
}

func (s *Store) Search(ctx context.Context, needle string) ([]model.ProfileSummary, error) {
	s.mu.RLock()
	ids := slices.Clone(s.order)
	s.mu.RUnlock()

	out := []model.ProfileSummary{}
	for _, id := range ids {
		p, err := s.snapshot(ctx, "search profiles", id)
		if err != nil {
			return nil, err
		}
		if strings.Contains(p.Username, needle) || strings.Contains(strings.ToLower(p.DisplayName), needle) {
			out = append(out, p.Summary())
		}
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, upd model.ProfileUpdate) (*model.Profile, error) {
	recs, release, err := s.lock(ctx, "update profile", id)
	if err != nil {
		return nil, err
	}
	defer release()

	upd.Apply(&recs[0].p)
	return clone(&recs[0].p), nil
}

func (s *Store) AddPost(ctx context.Context, profileID string, post *model.Post) error {
	recs, release, err := s.lock(ctx, "add post", profileID)
	if err != nil {
		return err
	}
	defer release()

	post.ID = xid.New().String()
	post.CreatedAt = time.Now().UTC()
	recs[0].p.Posts = append(recs[0].p.Posts, *post)
	return nil
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

func (s *Store) Create(ctx context.Context, profile *model.Profile, account *model.Account) error {
	if err := ctx.Err(); err != nil {
		return apperror.Transient("create account", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[profile.Username]; taken {
		return apperror.Conflict("username", profile.Username)
	}
	if account.Email != "" {
		if _, taken := s.emails[account.Email]; taken {
			return apperror.Conflict("email", account.Email)
		}
	}
	if account.GitHubID != 0 {
		if _, taken := s.githubIDs[account.GitHubID]; taken {
			return apperror.Conflict("github account", fmt.Sprint(account.GitHubID))
		}
	}

	now := time.Now().UTC()
	profile.ID = xid.New().String()
	profile.CreatedAt = now
	account.ProfileID = profile.ID
	account.CreatedAt = now

	s.records[profile.ID] = &record{sem: semaphore.NewWeighted(1), p: *clone(profile)}
	s.order = append(s.order, profile.ID)
	s.usernames[profile.Username] = profile.ID

	a := *account
	s.accounts[profile.ID] = &a
	if a.Email != "" {
		s.emails[a.Email] = profile.ID
	}
	if a.GitHubID != 0 {
		s.githubIDs[a.GitHubID] = profile.ID
	}
	return nil
}

func (s *Store) GetByProfileID(ctx context.Context, profileID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[profileID]
	if !ok {
		return nil, apperror.NotFound("account", profileID)
	}
	c := *a
	return &c, nil
}

func (s *Store) GetByGitHubID(ctx context.Context, githubID int64) (*model.Account, error) {
	s.mu.RLock()
	id, ok := s.githubIDs[githubID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperror.NotFound("account", fmt.Sprint(githubID))
	}
	return s.GetByProfileID(ctx, id)
}

// ---------------------------------------------------------------------------
// Outbox
// ---------------------------------------------------------------------------

// appendEvent is called while the records the event describes are locked, so
// the event and the mutation become visible together.
func (s *Store) appendEvent(typ model.EdgeEventType, actorID, targetID string) {
	ev := model.EdgeEvent{
		ID:         xid.New().String(),
		Type:       typ,
		ActorID:    actorID,
		TargetID:   targetID,
		OccurredAt: time.Now().UTC(),
	}
	// EdgeEvent has only string and time fields; Marshal cannot fail.
	payload, _ := json.Marshal(ev)

	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()
	s.outbox = append(s.outbox, &outboxRow{entry: model.OutboxEntry{
		ID:      ev.ID,
		Topic:   string(typ),
		Key:     targetID,
		Payload: payload,
	}})
}

func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()

	var out []model.OutboxEntry
	for _, row := range s.outbox {
		if len(out) == limit {
			break
		}
		if !row.published {
			out = append(out, row.entry)
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id string) error {
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()

	for _, row := range s.outbox {
		if row.entry.ID == id {
			row.published = true
			return nil
		}
	}
	return nil
}
