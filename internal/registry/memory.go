package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"leasing/risk-engine/internal/scoring"
)

// Memory is a thread-safe in-memory Registry.
type Memory struct {
	mu       sync.Mutex
	versions map[string]*Version
	order    []string // version_ids in creation order
	audit    []AuditEntry
	nextID   int64
	now      func() time.Time
}

// NewMemory creates an empty Memory registry.
func NewMemory() *Memory {
	return &Memory{
		versions: make(map[string]*Version),
		now:      time.Now,
	}
}

// Create stores a DRAFT copy of cal.
func (m *Memory) Create(_ context.Context, cal *scoring.Calibration, description, by string) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.versions[cal.Version]; exists {
		return nil, ErrDuplicateVersion
	}
	var published *scoring.Calibration
	if p := m.published(); p != nil {
		published = p.Calibration
	}

	now := m.now().UTC()
	v := &Version{
		VersionID:   cal.Version,
		Description: description,
		Status:      StatusDraft,
		Calibration: cal.Clone(),
		CreatedBy:   by,
		CreatedAt:   now,
	}
	m.versions[v.VersionID] = v
	m.order = append(m.order, v.VersionID)
	m.record(creationEntries(published, cal, by, now)...)
	return cloneVersion(v), nil
}

// Get returns a copy of one version.
func (m *Memory) Get(_ context.Context, versionID string) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.versions[versionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneVersion(v), nil
}

// List returns every version, newest first.
func (m *Memory) List(_ context.Context) ([]*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Version, 0, len(m.order))
	for _, id := range slices.Backward(m.order) {
		out = append(out, cloneVersion(m.versions[id]))
	}
	return out, nil
}

// Published returns the active version.
func (m *Memory) Published(_ context.Context) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v := m.published(); v != nil {
		return cloneVersion(v), nil
	}
	return nil, ErrNotFound
}

// Publish activates versionID and archives the previous active version.
func (m *Memory) Publish(_ context.Context, versionID, by string) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.versions[versionID]
	if !ok {
		return nil, ErrNotFound
	}
	if v.Status == StatusPublished {
		return cloneVersion(v), nil
	}

	now := m.now().UTC()
	if prev := m.published(); prev != nil {
		prev.Status = StatusArchived
		m.record(statusEntry(prev.VersionID, ActionArchived, StatusPublished, StatusArchived, by, now))
	}
	m.record(statusEntry(v.VersionID, ActionPublished, v.Status, StatusPublished, by, now))
	v.Status = StatusPublished
	v.PublishedBy = &by
	v.PublishedAt = &now
	return cloneVersion(v), nil
}

// ListAudit returns a version's audit entries, newest first.
func (m *Memory) ListAudit(_ context.Context, versionID string, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.versions[versionID]; !ok {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	out := []AuditEntry{}
	for _, e := range slices.Backward(m.audit) {
		if len(out) == limit {
			break
		}
		if e.VersionID == versionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) published() *Version {
	for _, v := range m.versions {
		if v.Status == StatusPublished {
			return v
		}
	}
	return nil
}

func (m *Memory) record(entries ...AuditEntry) {
	for _, e := range entries {
		m.nextID++
		e.ID = m.nextID
		m.audit = append(m.audit, e)
	}
}

func cloneVersion(v *Version) *Version {
	c := *v
	c.Calibration = v.Calibration.Clone()
	if v.PublishedBy != nil {
		by := *v.PublishedBy
		c.PublishedBy = &by
	}
	if v.PublishedAt != nil {
		at := *v.PublishedAt
		c.PublishedAt = &at
	}
	return &c
}
