package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"orgnotify/internal/model"
)

func ptr(v int64) *int64 { return &v }

// fakeDirectory serves affiliation lookups from an in-memory projection.
type fakeDirectory struct {
	mu           sync.Mutex
	affiliations map[int64]model.AccountAffiliation
	err          error
	queries      int
}

func (f *fakeDirectory) ActiveAccountIDs(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries++
	var ids []int64
	for id, a := range f.affiliations {
		if a.Active {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeDirectory) Affiliations(ctx context.Context, accountIDs []int64) (map[int64]model.AccountAffiliation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries++
	out := make(map[int64]model.AccountAffiliation)
	for _, id := range accountIDs {
		if a, ok := f.affiliations[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (f *fakeDirectory) ActiveAccountsByAffiliation(ctx context.Context, kind string, targetIDs []int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries++
	targets := make(map[int64]struct{}, len(targetIDs))
	for _, t := range targetIDs {
		targets[t] = struct{}{}
	}
	var ids []int64
	for id, a := range f.affiliations {
		if !a.Active {
			continue
		}
		var field *int64
		switch kind {
		case model.RuleKindProvince:
			field = a.ProvinceID
		case model.RuleKindRegion:
			field = a.RegionID
		case model.RuleKindCommunity:
			field = a.CommunityID
		}
		if field == nil {
			continue
		}
		if _, ok := targets[*field]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fakeNotificationStore mirrors the repository's claim semantics with a
// mutex standing in for the database's conditional UPDATE.
type fakeNotificationStore struct {
	mu            sync.Mutex
	notifications map[int64]*model.Notification
	claims        map[int64]time.Time
}

func newFakeNotificationStore(notifications ...*model.Notification) *fakeNotificationStore {
	s := &fakeNotificationStore{
		notifications: make(map[int64]*model.Notification),
		claims:        make(map[int64]time.Time),
	}
	for _, n := range notifications {
		s.notifications[n.ID] = n
	}
	return s
}

func (s *fakeNotificationStore) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (s *fakeNotificationStore) Claim(ctx context.Context, id int64, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.IsSent {
		return false, nil
	}
	if at, claimed := s.claims[id]; claimed && !at.Before(staleBefore) {
		return false, nil
	}
	s.claims[id] = time.Now()
	return true, nil
}

func (s *fakeNotificationStore) ReleaseClaim(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notifications[id]; ok && !n.IsSent {
		delete(s.claims, id)
	}
	return nil
}

func (s *fakeNotificationStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.IsSent {
		return errors.New("already finalized")
	}
	n.IsSent = true
	n.SentAt = &sentAt
	n.ScheduledFor = nil
	delete(s.claims, id)
	return nil
}

func (s *fakeNotificationStore) ListDueIDs(ctx context.Context, now, staleBefore time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, n := range s.notifications {
		if n.IsSent || n.ScheduledFor == nil || n.ScheduledFor.After(now) {
			continue
		}
		if at, claimed := s.claims[id]; claimed && !at.Before(staleBefore) {
			continue
		}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (s *fakeNotificationStore) claimedAt(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[id] = at
}

func (s *fakeNotificationStore) isClaimed(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claims[id]
	return ok
}

type fakeRuleStore struct {
	rules map[int64][]model.AudienceRule
	err   error
}

func (s *fakeRuleStore) ListByNotification(ctx context.Context, notificationID int64) ([]model.AudienceRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rules[notificationID], nil
}

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	last  []int64
	err   error
}

func (g *fakeGateway) Send(ctx context.Context, n *model.Notification, accountIDs []int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.calls++
	g.last = accountIDs
	return nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type publishedEvent struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{routingKey: routingKey, payload: payload})
	return nil
}

func (p *fakePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type fakeResolver struct {
	mu    sync.Mutex
	set   map[int64]struct{}
	err   error
	calls int
}

func (r *fakeResolver) ResolveFor(ctx context.Context, notificationID int64, rules []model.AudienceRule) (map[int64]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[int64]struct{}, len(r.set))
	for id := range r.set {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
