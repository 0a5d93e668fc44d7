package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"messhall/internal/attendance"
	"messhall/internal/feedback"
	"messhall/internal/meal"
	"messhall/internal/menu"
	"messhall/internal/registration"
	"messhall/internal/roster"
	"messhall/internal/schedule"
)

type scanKey struct {
	student string
	meal    meal.Type
	day     string
}

// Memory is an in-process store for dev and tests. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	students map[string]roster.Student
	byEmail  map[string]string
	scans    []attendance.ScanRecord
	scanKeys map[scanKey]struct{}
	counts   map[string]attendance.HeadCount
	menu     map[menu.Slot][]menu.Item
	feedback []feedback.Entry
	timings  map[string]schedule.Timing
	notices  []schedule.Notice
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		students: make(map[string]roster.Student),
		byEmail:  make(map[string]string),
		scanKeys: make(map[scanKey]struct{}),
		counts:   make(map[string]attendance.HeadCount),
		menu:     make(map[menu.Slot][]menu.Item),
		timings:  make(map[string]schedule.Timing),
	}
}

// Students

func (m *Memory) CreateStudent(_ context.Context, st roster.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[st.Email]; ok {
		return registration.ErrEmailTaken
	}
	m.students[st.ID] = st
	m.byEmail[st.Email] = st.ID
	return nil
}

func (m *Memory) StudentByID(_ context.Context, id string) (roster.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	return st, nil
}

func (m *Memory) StudentByEmail(_ context.Context, email string) (roster.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	return m.students[id], nil
}

func (m *Memory) ListStudents(_ context.Context, status roster.Status) ([]roster.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []roster.Student{}
	for _, st := range m.students {
		if status == "" || st.Status == status {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateStudentStatus(_ context.Context, id string, status roster.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok {
		return roster.ErrNotFound
	}
	if st.Status != roster.StatusPending {
		return registration.ErrInvalidTransition
	}
	st.Status = status
	st.DecidedAt = &at
	if status == roster.StatusApproved {
		st.ApprovedAt = &at
	}
	m.students[id] = st
	return nil
}

// Scans and head counts

func (m *Memory) AppendScan(_ context.Context, rec attendance.ScanRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scanKey{student: rec.StudentID, meal: rec.Meal, day: rec.Day}
	if _, ok := m.scanKeys[key]; ok {
		return false, nil
	}
	m.scanKeys[key] = struct{}{}
	m.scans = append(m.scans, rec)
	return true, nil
}

func (m *Memory) IncrementHeadCount(_ context.Context, day string, mt meal.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hc := m.counts[day]
	hc.Date = day
	hc.Add(mt)
	m.counts[day] = hc
	return nil
}

func (m *Memory) ListScans(_ context.Context, f attendance.ScanFilter) ([]attendance.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []attendance.ScanRecord{}
	for _, rec := range m.scans {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (m *Memory) DeleteScans(_ context.Context, f attendance.ScanFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.scans[:0]
	removed := 0
	for _, rec := range m.scans {
		if f.Match(rec) {
			delete(m.scanKeys, scanKey{student: rec.StudentID, meal: rec.Meal, day: rec.Day})
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.scans = kept
	return removed, nil
}

func (m *Memory) HeadCounts(_ context.Context) ([]attendance.HeadCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]attendance.HeadCount, 0, len(m.counts))
	for _, hc := range m.counts {
		out = append(out, hc)
	}
	return out, nil
}

func (m *Memory) ReplaceHeadCounts(_ context.Context, counts []attendance.HeadCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]attendance.HeadCount, len(counts))
	for _, hc := range counts {
		m.counts[hc.Date] = hc
	}
	return nil
}

// Menu

func (m *Memory) MenuItems(_ context.Context) (map[menu.Slot][]menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[menu.Slot][]menu.Item, len(m.menu))
	for slot, items := range m.menu {
		out[slot] = append([]menu.Item(nil), items...)
	}
	return out, nil
}

func (m *Memory) ReplaceMenuItems(_ context.Context, slot menu.Slot, items []menu.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menu[slot] = append([]menu.Item(nil), items...)
	return nil
}

func (m *Memory) AddMenuItem(_ context.Context, slot menu.Slot, item menu.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menu[slot] = append(m.menu[slot], item)
	return nil
}

func (m *Memory) RemoveMenuItem(_ context.Context, slot menu.Slot, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.menu[slot]
	for i, it := range items {
		if it.ID == id {
			m.menu[slot] = append(items[:i:i], items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Feedback

func (m *Memory) CreateFeedback(_ context.Context, e feedback.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, e)
	return nil
}

func (m *Memory) Feedback(_ context.Context, id string) (feedback.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.feedback {
		if e.ID == id {
			return e, nil
		}
	}
	return feedback.Entry{}, feedback.ErrNotFound
}

func (m *Memory) ListFeedback(_ context.Context, status feedback.Status) ([]feedback.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []feedback.Entry{}
	for i := len(m.feedback) - 1; i >= 0; i-- {
		if status == "" || m.feedback[i].Status == status {
			out = append(out, m.feedback[i])
		}
	}
	return out, nil
}

func (m *Memory) SetFeedbackStatus(_ context.Context, id string, status feedback.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.feedback {
		if m.feedback[i].ID == id {
			m.feedback[i].Status = status
			return nil
		}
	}
	return feedback.ErrNotFound
}

// Schedule

func (m *Memory) ScheduleTimings(_ context.Context) (map[string]schedule.Timing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]schedule.Timing, len(m.timings))
	for day, t := range m.timings {
		out[day] = t
	}
	return out, nil
}

func (m *Memory) PutScheduleTiming(_ context.Context, t schedule.Timing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings[t.Day] = t
	return nil
}

func (m *Memory) Notices(_ context.Context) ([]schedule.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schedule.Notice{}, m.notices...), nil
}

func (m *Memory) CreateNotice(_ context.Context, n schedule.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, n)
	return nil
}

func (m *Memory) UpdateNotice(_ context.Context, n schedule.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notices {
		if m.notices[i].ID == n.ID {
			m.notices[i] = n
			return nil
		}
	}
	return schedule.ErrNoticeNotFound
}

func (m *Memory) DeleteNotice(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notices {
		if n.ID == id {
			m.notices = append(m.notices[:i:i], m.notices[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Ping reports the store as reachable.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
