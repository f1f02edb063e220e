package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
)

var (
	// ErrNotFound is returned by a Store when a scope has no persisted version.
	ErrNotFound = errors.New("schema not found")
	// ErrVersionConflict is returned by Store.Append when another writer
	// appended a version after expectedVersion.
	ErrVersionConflict = errors.New("schema version conflict")
)

// Store persists schema versions per scope. Versions are append-only;
// Append must fail with ErrVersionConflict unless the latest persisted
// version of scope equals expectedVersion (0 when nothing is persisted).
type Store interface {
	Latest(ctx context.Context, scope string) (*Schema, error)
	Append(ctx context.Context, scope string, expectedVersion int, s *Schema, reason string) (*Schema, error)
}

// Manager resolves the active schema for an extraction and widens it when
// extraction meets relationship types the schema does not know.
type Manager struct {
	store      Store
	defaults   *Schema
	maxRetries int
}

type ManagerOption func(*Manager)

// WithDefault replaces the built-in system default used when no system
// version is persisted.
func WithDefault(s *Schema) ManagerOption {
	return func(m *Manager) {
		if s != nil {
			m.defaults = s.Clone()
		}
	}
}

// WithMaxRetries bounds how often a conflicting append is retried.
func WithMaxRetries(n int) ManagerOption {
	return func(m *Manager) {
		m.maxRetries = n
	}
}

func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		defaults:   Default(),
		maxRetries: 5,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// latest returns the newest persisted version of scope, or nil.
func (m *Manager) latest(ctx context.Context, scope string) (*Schema, error) {
	s, err := m.store.Latest(ctx, scope)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load schema for scope %q: %w", scope, err)
	}
	return s, nil
}

// Resolve returns the user's latest schema, else the latest system schema,
// else the built-in default. It never writes.
func (m *Manager) Resolve(ctx context.Context, userID string) (*Schema, error) {
	if userID != "" {
		s, err := m.latest(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s != nil {
			return s, nil
		}
	}

	s, err := m.latest(ctx, SystemScope)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}
	return m.defaults.Clone(), nil
}

// Validate checks a schema without persisting it.
func (m *Manager) Validate(s *Schema) []ValidationError {
	return Validate(s)
}

// Replace stores s as the next version of scope. The schema is validated
// first; an invalid schema is returned as ValidationErrors.
func (m *Manager) Replace(ctx context.Context, scope string, s *Schema, reason string) (*Schema, error) {
	if errs := Validate(s); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	var saved *Schema
	err := m.retryOnConflict(ctx, func(ctx context.Context) error {
		current, err := m.latest(ctx, scope)
		if err != nil {
			return err
		}
		expected := 0
		if current != nil {
			expected = current.Version
		}
		next := s.Clone()
		next.Scope = scope
		next.Version = expected + 1
		saved, err = m.store.Append(ctx, scope, expected, next, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (m *Manager) retryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	return util.RetryWithBackoff(ctx, m.maxRetries, util.Backoff{}, func(err error) bool {
		return errors.Is(err, ErrVersionConflict)
	}, func(ctx context.Context, attempt int) error {
		return fn(ctx)
	})
}

// RegisterMissingRelationship widens the persisted schema of s's scope so
// that relType connects sourceType to targetType. Unknown relationship
// types are added under FallbackRelationshipCategory; known types gain the
// endpoint pair. The change is a new version; earlier versions stay intact.
//
// Registering a pair the latest version already allows is a no-op that
// returns that version.
func (m *Manager) RegisterMissingRelationship(
	ctx context.Context,
	s *Schema,
	relType string,
	sourceType string,
	targetType string,
) (*Schema, error) {
	name := CanonicalRelationshipName(relType)
	if name == "" {
		return nil, fmt.Errorf("relationship type is empty")
	}
	if s == nil {
		return nil, fmt.Errorf("schema is nil")
	}
	scope := s.Scope

	var result *Schema
	err := m.retryOnConflict(ctx, func(ctx context.Context) error {
		base, err := m.latest(ctx, scope)
		if err != nil {
			return err
		}
		expected := 0
		if base == nil {
			base = s.Clone()
			base.Version = 0
		} else {
			expected = base.Version
		}

		if rt, ok := base.RelationshipType(name); ok && rt.Allows(sourceType, targetType) {
			result = base
			return nil
		}

		next, reason := widen(base, name, sourceType, targetType)
		next.Version = expected + 1
		if errs := Validate(next); len(errs) > 0 {
			return ValidationErrors(errs)
		}

		saved, err := m.store.Append(ctx, scope, expected, next, reason)
		if errors.Is(err, ErrVersionConflict) {
			logger.Debug("[Schema] Concurrent schema update, retrying", "scope", scope, "relationship", name)
		}
		if err != nil {
			return err
		}
		logger.Info("[Schema] Registered relationship", "scope", scope, "relationship", name, "source", sourceType, "target", targetType, "version", saved.Version)
		result = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func widen(base *Schema, name, sourceType, targetType string) (*Schema, string) {
	next := base.Clone()
	for i, rt := range next.RelationshipTypes {
		if !strings.EqualFold(CanonicalRelationshipName(rt.Name), name) {
			continue
		}
		if len(rt.Sources) > 0 && !containsFold(rt.Sources, sourceType) {
			rt.Sources = append(rt.Sources, sourceType)
		}
		if len(rt.Targets) > 0 && !containsFold(rt.Targets, targetType) {
			rt.Targets = append(rt.Targets, targetType)
		}
		next.RelationshipTypes[i] = rt
		return next, fmt.Sprintf("widen %s: %s -> %s", rt.Name, sourceType, targetType)
	}

	next.RelationshipTypes = append(next.RelationshipTypes, RelationshipType{
		Name:     name,
		Category: FallbackRelationshipCategory,
		Sources:  []string{sourceType},
		Targets:  []string{targetType},
	})
	return next, fmt.Sprintf("register %s: %s -> %s", name, sourceType, targetType)
}
