package editor

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/upstream"
)

// Backend is the slice of the upstream client the editor needs.
type Backend interface {
	LoadCourse(ctx context.Context, dersID int) (*catalog.Course, error)
	LoadUnits(ctx context.Context, dersID int) ([]catalog.LearningUnit, error)
	SaveCourse(ctx context.Context, course catalog.Course) (string, error)
	CopyCourse(ctx context.Context, req upstream.CopyRequest) error
	ImportUnits(ctx context.Context, dersID int, dbfPath string) (int, error)
}

// Session is one open course-edit panel. It owns the only mutable copy of
// the course during the edit; nothing else reads or writes it. Closing the
// session discards the tree.
type Session struct {
	ID       string
	mu       sync.Mutex
	course   catalog.Course
	links    Links
	dirty    bool
	fallback bool // true when the fresh load failed and row data was used
	nextKey  int
	openedAt time.Time
}

// Manager opens and tracks edit sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	backend  Backend
}

// NewManager creates a session manager.
func NewManager(backend Backend) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		backend:  backend,
	}
}

// Open loads the authoritative course record and its unit tree fresh from
// the backend and starts a session. When the fetch fails and fallbackRow is
// given, the session starts from the table row instead, so the panel is
// never left empty.
func (m *Manager) Open(ctx context.Context, dersID int, fallbackRow *catalog.CourseRow) (*Session, error) {
	s := &Session{
		ID:       generateID(),
		links:    Links{},
		openedAt: time.Now(),
	}

	course, err := m.backend.LoadCourse(ctx, dersID)
	switch {
	case err == nil:
		s.course = course.Clone()
	case fallbackRow != nil:
		slog.Warn("fresh course load failed, using table row", "ders_id", dersID, "error", err)
		s.course = courseFromRow(*fallbackRow)
		s.fallback = true
	default:
		return nil, fmt.Errorf("load course %d: %w", dersID, err)
	}

	if !s.fallback {
		units, err := m.backend.LoadUnits(ctx, dersID)
		if err != nil {
			slog.Warn("unit tree load failed, starting empty", "ders_id", dersID, "error", err)
		} else if units != nil {
			s.course.OgrenmeBirimleri = catalog.CloneUnits(units)
		}
	}
	s.assignKeys()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("edit session opened", "session_id", s.ID, "ders_id", dersID, "fallback", s.fallback)
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return s, nil
}

// Close discards a session and reports whether unsaved changes were dropped.
// There is no confirmation here; the shell decides what to do with dirty.
func (m *Manager) Close(id string) (dirty bool, err error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("session not found: %s", id)
	}

	s.mu.Lock()
	dirty = s.dirty
	s.mu.Unlock()
	slog.Info("edit session closed", "session_id", id, "dirty", dirty)
	return dirty, nil
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func courseFromRow(row catalog.CourseRow) catalog.Course {
	return catalog.Course{
		ID:        row.DersID,
		DersAdi:   row.DersAdi,
		Sinif:     row.Sinif,
		DersSaati: row.DersSaati,
		AlanID:    row.AlanID,
		DalID:     row.DalID,
		DmURL:     row.DmURL,
		DbfURL:    row.DbfURL,
		BomURL:    row.BomURL,
	}
}

// assignKeys gives every topic a session-local handle. Keys persist across
// mutations because the tree operations copy topics wholesale.
func (s *Session) assignKeys() {
	for ui := range s.course.OgrenmeBirimleri {
		for ti := range s.course.OgrenmeBirimleri[ui].Konular {
			tp := &s.course.OgrenmeBirimleri[ui].Konular[ti]
			if tp.Key == "" {
				tp.Key = s.newKey()
			}
		}
	}
}

func (s *Session) newKey() string {
	s.nextKey++
	return "t" + strconv.Itoa(s.nextKey)
}

// Snapshot returns a deep copy of the current editable state.
func (s *Session) Snapshot() catalog.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.course.Clone()
}

// Dirty reports whether the session holds unsaved changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// UsedFallback reports whether the session was seeded from the table row.
func (s *Session) UsedFallback() bool {
	return s.fallback
}

// Links returns a copy of the current cross-link adjacency.
func (s *Session) LinkView() Links {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Links{}
	for owner, targets := range s.links {
		out[owner] = append([]string(nil), targets...)
	}
	return out
}

// UpdateScalars applies scalar field updates. Selecting a new area clears
// the branch, since a course's branch must belong to its area.
func (s *Session) UpdateScalars(updates map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for field, v := range updates {
		switch field {
		case "ders_adi":
			if str, ok := v.(string); ok {
				s.course.DersAdi = str
			}
		case "sinif":
			if n, ok := asInt(v); ok {
				s.course.Sinif = n
			}
		case "ders_saati":
			if n, ok := asInt(v); ok {
				s.course.DersSaati = n
			}
		case "alan_id":
			if n, ok := asInt(v); ok && n != s.course.AlanID {
				s.course.AlanID = n
				s.course.DalID = 0
			}
		case "dal_id":
			if n, ok := asInt(v); ok {
				s.course.DalID = n
			}
		case "dm_url":
			if str, ok := v.(string); ok {
				s.course.DmURL = str
			}
		case "dbf_url":
			if str, ok := v.(string); ok {
				s.course.DbfURL = str
			}
		case "bom_url":
			if str, ok := v.(string); ok {
				s.course.BomURL = str
			}
		case "amac":
			if str, ok := v.(string); ok {
				s.course.Amac = str
			}
		}
	}
	s.dirty = true
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64: // JSON numbers decode to float64
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// mutateTree runs a pure tree operation under the session lock and marks
// the session dirty on success.
func (s *Session) mutateTree(op func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	units, err := op(s.course.OgrenmeBirimleri)
	if err != nil {
		return err
	}
	s.course.OgrenmeBirimleri = units
	s.links.Prune(topicKeys(units))
	s.dirty = true
	return nil
}

func (s *Session) AddUnit(name string, sure int) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return AddUnit(units, name, sure), nil
	})
}

func (s *Session) RemoveUnit(i int) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return RemoveUnit(units, i)
	})
}

func (s *Session) UpdateUnit(i int, patch UnitPatch) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return UpdateUnit(units, i, patch)
	})
}

func (s *Session) AddTopic(unitIdx int, name string) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return AddTopic(units, unitIdx, name, s.newKey())
	})
}

func (s *Session) RemoveTopic(unitIdx, topicIdx int) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return RemoveTopic(units, unitIdx, topicIdx)
	})
}

func (s *Session) UpdateTopic(unitIdx, topicIdx int, name string) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return UpdateTopic(units, unitIdx, topicIdx, name)
	})
}

func (s *Session) AddOutcome(unitIdx, topicIdx int, text string) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return AddOutcome(units, unitIdx, topicIdx, text)
	})
}

func (s *Session) RemoveOutcome(unitIdx, topicIdx, outcomeIdx int) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return RemoveOutcome(units, unitIdx, topicIdx, outcomeIdx)
	})
}

func (s *Session) UpdateOutcome(unitIdx, topicIdx, outcomeIdx int, text string) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return UpdateOutcome(units, unitIdx, topicIdx, outcomeIdx, text)
	})
}

func (s *Session) SetPrimaryOutcome(unitIdx, topicIdx int, text string) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return SetPrimaryOutcome(units, unitIdx, topicIdx, text)
	})
}

func (s *Session) DivideTopics(unitIdx int, text string) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return DivideIntoTopics(units, unitIdx, text, s.newKey)
	})
}

func (s *Session) DivideOutcomes(unitIdx, topicIdx int, text string) error {
	return s.mutateTree(func(units []catalog.LearningUnit) ([]catalog.LearningUnit, error) {
		return DivideIntoOutcomes(units, unitIdx, topicIdx, text)
	})
}

// ToggleLink links or unlinks target under owner.
func (s *Session) ToggleLink(owner, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := topicKeys(s.course.OgrenmeBirimleri)
	if !keys[owner] {
		return fmt.Errorf("unknown topic key: %s", owner)
	}
	if !keys[target] {
		return fmt.Errorf("unknown topic key: %s", target)
	}
	if err := s.links.Toggle(owner, target); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Grouped returns the render view of one unit's topics.
func (s *Session) Grouped(unitIdx int) ([]GroupedTopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Grouped(s.course.OgrenmeBirimleri, unitIdx, s.links)
}

// Save writes the scalar fields and the whole tree back in one call. The
// session stays open so editing can continue; on success it is clean again.
func (s *Session) Save(ctx context.Context, backend Backend) (string, error) {
	s.mu.Lock()
	course := s.course.Clone()
	s.mu.Unlock()

	msg, err := backend.SaveCourse(ctx, course)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return msg, nil
}

// ErrCopyTargetMissing rejects a copy without a full destination.
var ErrCopyTargetMissing = errors.New("hedef alan ve dal seçilmelidir")

// Copy duplicates the course into another area/branch. Both destination
// fields are required; the rejection happens locally, before any call.
func (s *Session) Copy(ctx context.Context, backend Backend, alanID, dalID int) error {
	if alanID == 0 || dalID == 0 {
		return ErrCopyTargetMissing
	}

	s.mu.Lock()
	course := s.course.Clone()
	s.mu.Unlock()

	return backend.CopyCourse(ctx, upstream.CopyRequest{
		SourceDersID: course.ID,
		TargetAlanID: alanID,
		TargetDalID:  dalID,
		Data:         course,
	})
}

// ImportUnits pulls learning units out of the course's source document on
// the backend, then reloads the tree so the session reflects the import.
func (s *Session) ImportUnits(ctx context.Context, backend Backend, dbfPath string) (int, error) {
	s.mu.Lock()
	dersID := s.course.ID
	s.mu.Unlock()

	n, err := backend.ImportUnits(ctx, dersID, dbfPath)
	if err != nil {
		return 0, err
	}

	units, err := backend.LoadUnits(ctx, dersID)
	if err != nil {
		return n, fmt.Errorf("reload units after import: %w", err)
	}

	s.mu.Lock()
	s.course.OgrenmeBirimleri = catalog.CloneUnits(units)
	s.links = Links{}
	s.assignKeys()
	s.dirty = false
	s.mu.Unlock()
	return n, nil
}

func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
