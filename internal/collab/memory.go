package collab

import (
	"context"
	"sync"

	"github.com/watzon/actra/internal/value"
)

// MemProfileStore is a map-backed ProfileStore.
type MemProfileStore struct {
	mu       sync.Mutex
	profiles map[string]map[string]value.Value
}

func NewMemProfileStore() *MemProfileStore {
	return &MemProfileStore{profiles: make(map[string]map[string]value.Value)}
}

func (s *MemProfileStore) GetProfile(_ context.Context, idTag string) (value.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[idTag]
	if !ok {
		return value.Null(), ErrNotFound
	}
	cloned := make(map[string]value.Value, len(p))
	for k, v := range p {
		cloned[k] = v
	}
	return value.Map(cloned), nil
}

func (s *MemProfileStore) UpdateProfile(_ context.Context, idTag string, patch map[string]value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[idTag]
	if !ok {
		p = make(map[string]value.Value)
		s.profiles[idTag] = p
	}
	for k, v := range patch {
		p[k] = v
	}
	return nil
}

// MemActionStore is a map-backed ActionStore with a secondary key index.
type MemActionStore struct {
	mu    sync.Mutex
	byID  map[string]*Action
	byKey map[string]string
}

func NewMemActionStore() *MemActionStore {
	return &MemActionStore{
		byID:  make(map[string]*Action),
		byKey: make(map[string]string),
	}
}

func (s *MemActionStore) CreateAction(_ context.Context, a *Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *a
	s.byID[a.ActionID] = &copied
	if a.Key != "" {
		s.byKey[a.Key] = a.ActionID
	}
	return nil
}

func (s *MemActionStore) GetActionByID(_ context.Context, actionID string) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[actionID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *MemActionStore) GetActionByKey(_ context.Context, key string) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.byID[id]
	return &copied, nil
}

func (s *MemActionStore) UpdateAction(_ context.Context, actionID string, set map[string]value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[actionID]
	if !ok {
		return ErrNotFound
	}
	for field, v := range set {
		switch field {
		case "status":
			a.Status = v.Stringify()
		case "flags":
			a.Flags = v.Stringify()
		case "content":
			a.Content = v
		case "subtype":
			a.Subtype = v.Stringify()
		default:
			if a.Stats == nil {
				a.Stats = make(map[string]float64)
			}
			n, err := v.AsNumber()
			if err != nil {
				return err
			}
			a.Stats[field] = n
		}
	}
	return nil
}

func (s *MemActionStore) DeleteAction(_ context.Context, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[actionID]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, actionID)
	if a.Key != "" {
		delete(s.byKey, a.Key)
	}
	return nil
}

// Delivery records one federation send for test inspection.
type Delivery struct {
	Audience string
	ActionID string
	Token    string
}

// MemFederation records deliveries instead of sending them.
type MemFederation struct {
	mu         sync.Mutex
	Sent       []Delivery
	Broadcasts []Delivery
	Synced     []string
}

func NewMemFederation() *MemFederation { return &MemFederation{} }

func (f *MemFederation) SendToAudience(_ context.Context, audience, actionID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, Delivery{Audience: audience, ActionID: actionID, Token: token})
	return nil
}

func (f *MemFederation) BroadcastToFollowers(_ context.Context, actionID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Broadcasts = append(f.Broadcasts, Delivery{ActionID: actionID, Token: token})
	return nil
}

func (f *MemFederation) SyncAttachment(_ context.Context, fileID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Synced = append(f.Synced, fileID)
	return nil
}

// MemNotifier records notifications instead of delivering them.
type MemNotifier struct {
	mu    sync.Mutex
	Sent  []Notification
	fail  error
	delay chan struct{}
}

func NewMemNotifier() *MemNotifier { return &MemNotifier{} }

func (n *MemNotifier) CreateNotification(ctx context.Context, notif Notification) error {
	if n.delay != nil {
		select {
		case <-n.delay:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.Sent = append(n.Sent, notif)
	return nil
}

// Fail makes every subsequent call return err.
func (n *MemNotifier) Fail(err error) { n.fail = err }

// Block makes calls wait until the returned release function runs or the
// context is canceled. Used to exercise hook timeouts.
func (n *MemNotifier) Block() (release func()) {
	ch := make(chan struct{})
	n.delay = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}
