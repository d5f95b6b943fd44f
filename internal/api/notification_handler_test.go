package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orgnotify/internal/model"
	"orgnotify/internal/service"
)

// memStore backs the full HTTP surface with in-memory state so the handlers
// run against real service wiring.
type memStore struct {
	mu            sync.Mutex
	notifications map[int64]*model.Notification
	claims        map[int64]time.Time
	rules         map[int64][]model.AudienceRule
	affiliations  map[int64]model.AccountAffiliation
	receipts      map[[2]int64]time.Time
	gatewayErr    error
	gatewayCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		notifications: make(map[int64]*model.Notification),
		claims:        make(map[int64]time.Time),
		rules:         make(map[int64][]model.AudienceRule),
		affiliations:  make(map[int64]model.AccountAffiliation),
		receipts:      make(map[[2]int64]time.Time),
	}
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (s *memStore) Claim(ctx context.Context, id int64, staleBefore time.Time) (bool, error) {
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

func (s *memStore) ReleaseClaim(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, id)
	return nil
}

func (s *memStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.notifications[id]
	n.IsSent = true
	n.SentAt = &sentAt
	n.ScheduledFor = nil
	delete(s.claims, id)
	return nil
}

func (s *memStore) ListDueIDs(ctx context.Context, now, staleBefore time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, n := range s.notifications {
		if !n.IsSent && n.ScheduledFor != nil && !n.ScheduledFor.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) ListSentVisibleTo(ctx context.Context, accountID int64, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.notifications {
		if n.IsSent {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *memStore) ListByNotification(ctx context.Context, notificationID int64) ([]model.AudienceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[notificationID], nil
}

func (s *memStore) ActiveAccountIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, a := range s.affiliations {
		if a.Active {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) Affiliations(ctx context.Context, accountIDs []int64) (map[int64]model.AccountAffiliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]model.AccountAffiliation)
	for _, id := range accountIDs {
		if a, ok := s.affiliations[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *memStore) ActiveAccountsByAffiliation(ctx context.Context, kind string, targetIDs []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make(map[int64]struct{}, len(targetIDs))
	for _, t := range targetIDs {
		targets[t] = struct{}{}
	}
	var ids []int64
	for id, a := range s.affiliations {
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

func (s *memStore) Insert(ctx context.Context, notificationID, accountID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]int64{notificationID, accountID}
	if _, ok := s.receipts[k]; ok {
		return false, nil
	}
	s.receipts[k] = time.Now()
	return true, nil
}

func (s *memStore) Exists(ctx context.Context, notificationID, accountID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.receipts[[2]int64{notificationID, accountID}]
	return ok, nil
}

func (s *memStore) ExistsBatch(ctx context.Context, notificationIDs []int64, accountID int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool, len(notificationIDs))
	for _, id := range notificationIDs {
		_, ok := s.receipts[[2]int64{id, accountID}]
		out[id] = ok
	}
	return out, nil
}

func (s *memStore) Send(ctx context.Context, n *model.Notification, accountIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gatewayErr != nil {
		return s.gatewayErr
	}
	s.gatewayCalls++
	return nil
}

func newTestRouter(store *memStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	zl := zap.NewNop()

	dispatcher := service.NewDispatcher(store, store, service.NewResolver(store, zl), store, nil, 5*time.Minute, 100, zl)
	visibility := service.NewVisibilityService(store, store, store, zl)
	reads := service.NewReadTracker(store, store, zl)

	handler := NewNotificationHandler(dispatcher, visibility, reads, zl)
	return NewRouter(handler).Engine
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func seedUnsent(store *memStore, id int64) {
	store.notifications[id] = &model.Notification{
		ID:             id,
		Title:          "title",
		Body:           "body",
		Classification: model.ClassificationAnnouncement,
	}
	store.rules[id] = []model.AudienceRule{{Kind: model.RuleKindAll}}
}

func seedSent(store *memStore, id int64) {
	seedUnsent(store, id)
	now := time.Now()
	store.notifications[id].IsSent = true
	store.notifications[id].SentAt = &now
}

func TestDispatchEndpoint_Sends(t *testing.T) {
	store := newMemStore()
	seedUnsent(store, 1)
	store.affiliations[42] = model.AccountAffiliation{AccountID: 42, Active: true}
	engine := newTestRouter(store)

	w := doRequest(t, engine, http.MethodPost, "/notifications/1/dispatch", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"sent"}`, w.Body.String())
	assert.Equal(t, 1, store.gatewayCalls)
}

func TestDispatchEndpoint_AlreadySent(t *testing.T) {
	store := newMemStore()
	seedSent(store, 1)
	engine := newTestRouter(store)

	w := doRequest(t, engine, http.MethodPost, "/notifications/1/dispatch", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"already_sent"}`, w.Body.String())
}

func TestDispatchEndpoint_NotFound(t *testing.T) {
	engine := newTestRouter(newMemStore())

	w := doRequest(t, engine, http.MethodPost, "/notifications/99/dispatch", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDispatchEndpoint_GatewayFailure(t *testing.T) {
	store := newMemStore()
	seedUnsent(store, 1)
	store.affiliations[42] = model.AccountAffiliation{AccountID: 42, Active: true}
	store.gatewayErr = model.ErrGatewayFailure
	engine := newTestRouter(store)

	w := doRequest(t, engine, http.MethodPost, "/notifications/1/dispatch", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	n := store.notifications[1]
	assert.False(t, n.IsSent, "gateway failure keeps the notification retryable")
}

func TestDispatchEndpoint_InvalidID(t *testing.T) {
	engine := newTestRouter(newMemStore())

	w := doRequest(t, engine, http.MethodPost, "/notifications/abc/dispatch", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunScheduledEndpoint(t *testing.T) {
	store := newMemStore()
	seedUnsent(store, 1)
	past := time.Now().Add(-time.Minute)
	store.notifications[1].ScheduledFor = &past
	store.affiliations[42] = model.AccountAffiliation{AccountID: 42, Active: true}
	engine := newTestRouter(store)

	w := doRequest(t, engine, http.MethodPost, "/dispatch/run", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"dispatched":1}`, w.Body.String())
}

func TestMarkReadEndpoint_IdempotentAcrossRepeats(t *testing.T) {
	store := newMemStore()
	seedSent(store, 1)
	engine := newTestRouter(store)

	body := map[string]int64{"account_id": 42}
	w := doRequest(t, engine, http.MethodPost, "/notifications/1/read", body)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, engine, http.MethodPost, "/notifications/1/read", body)
	assert.Equal(t, http.StatusNoContent, w.Code, "repeat reads are a no-op")

	w = doRequest(t, engine, http.MethodGet, "/notifications/1/read?account_id=42", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"read":true}`, w.Body.String())
}

func TestMarkReadEndpoint_BadBody(t *testing.T) {
	store := newMemStore()
	seedSent(store, 1)
	engine := newTestRouter(store)

	w := doRequest(t, engine, http.MethodPost, "/notifications/1/read", map[string]string{"account_id": "oops"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkReadEndpoint_UnknownNotification(t *testing.T) {
	engine := newTestRouter(newMemStore())

	w := doRequest(t, engine, http.MethodPost, "/notifications/99/read", map[string]int64{"account_id": 42})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCanViewEndpoint(t *testing.T) {
	store := newMemStore()
	seedSent(store, 1)
	store.rules[1] = []model.AudienceRule{{Kind: model.RuleKindUser, TargetID: ptrInt64(42)}}
	engine := newTestRouter(store)

	w := doRequest(t, engine, http.MethodGet, "/notifications/1/visibility?account_id=42", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"visible":true}`, w.Body.String())

	w = doRequest(t, engine, http.MethodGet, "/notifications/1/visibility?account_id=43", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"visible":false}`, w.Body.String())

	w = doRequest(t, engine, http.MethodGet, "/notifications/1/visibility", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListVisibleEndpoint_IncludesReadFlags(t *testing.T) {
	store := newMemStore()
	seedSent(store, 1)
	seedSent(store, 2)
	store.receipts[[2]int64{1, 42}] = time.Now()
	engine := newTestRouter(store)

	w := doRequest(t, engine, http.MethodGet, "/accounts/42/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Notifications []struct {
			ID   int64 `json:"id"`
			Read bool  `json:"read"`
		} `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Notifications, 2)

	reads := make(map[int64]bool)
	for _, n := range resp.Notifications {
		reads[n.ID] = n.Read
	}
	assert.Equal(t, map[int64]bool{1: true, 2: false}, reads)
}

func TestHealthz(t *testing.T) {
	engine := newTestRouter(newMemStore())

	w := doRequest(t, engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func ptrInt64(v int64) *int64 { return &v }
