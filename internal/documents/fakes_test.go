package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cvcreator-backend/internal/render"
	"cvcreator-backend/internal/shared/storage/object"
)

// jsonTemplates renders any known template name as the JSON of its data, so the PDF bytes
// reflect the form values that produced them.
type jsonTemplates struct {
	known map[string]bool
}

func (t jsonTemplates) Render(_ context.Context, name string, data any) (string, error) {
	if !t.known[name] {
		return "", fmt.Errorf("%w: %s", render.ErrTemplateNotFound, name)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return "<html>" + name + ":" + string(payload) + "</html>", nil
}

type fakePDF struct{}

func (fakePDF) Render(_ context.Context, html string) ([]byte, error) {
	return []byte("%PDF-1.7\n" + html), nil
}

// memStore is an object.Store with injectable failures.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	overwrite bool
	putErr    error
	getErr    error
	deleteErr error
	puts      int
	deletes   []string
}

func newMemStore(overwrite bool) *memStore {
	return &memStore{objects: map[string][]byte{}, overwrite: overwrite}
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if _, exists := m.objects[key]; exists && !m.overwrite {
		return fmt.Errorf("duplicate key %s: %w", key, object.ErrUnavailable)
	}
	m.puts++
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, object.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, key)
	delete(m.objects, key)
	return nil
}

func (m *memStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", object.ErrNotFound
	}
	return fmt.Sprintf("https://storage.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (m *memStore) CanOverwrite() bool { return m.overwrite }

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *memStore) fail(put, get, del error) {
	m.mu.Lock()
	m.putErr, m.getErr, m.deleteErr = put, get, del
	m.mu.Unlock()
}

type staticOwners map[string]bool

func (o staticOwners) Exists(_ context.Context, id string) (bool, error) { return o[id], nil }

// steppingClock advances by one second on every read.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type serviceFixture struct {
	svc   *Service
	repo  *MemoryRepo
	store *memStore
}

func newFixture(t *testing.T, overwrite bool) serviceFixture {
	t.Helper()
	repo := NewMemoryRepo(nil)
	store := newMemStore(overwrite)
	clock := &steppingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := &Service{
		Repo:      repo,
		Store:     store,
		Templates: jsonTemplates{known: map[string]bool{"modern": true, "coverletter": true}},
		PDF:       fakePDF{},
		Now:       clock.Now,
	}
	return serviceFixture{svc: svc, repo: repo, store: store}
}

func resumeValues(fullName string) map[string]any {
	return map[string]any{
		"personalInfo": map[string]any{"fullName": fullName, "email": "someone@example.com"},
		"skillsInfo":   []any{map[string]any{"title": "Go"}},
	}
}

func coverLetterValues(fullName string) map[string]any {
	return map[string]any{
		"senderInfo":    map[string]any{"fullName": fullName},
		"recipientInfo": map[string]any{"companyName": "Acme", "hiringManagerName": "Jane Roe"},
		"metaInfo":      map[string]any{"subject": "Backend Engineer", "sentDate": "2024-01-01"},
		"content": map[string]any{
			"salutation":   "Dear Jane,",
			"introduction": "I am writing to apply.",
			"body":         "I build services.",
			"conclusion":   "Thank you.",
			"signOff":      "Regards,",
		},
	}
}

func mustGenerate(t *testing.T, svc *Service, req GenerateRequest) Document {
	t.Helper()
	out, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Document == nil {
		t.Fatalf("expected persisted document")
	}
	return *out.Document
}

var errBackend = errors.New("backend exploded")
