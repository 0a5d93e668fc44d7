package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"messhall/internal/attendance"
	"messhall/internal/feedback"
	"messhall/internal/meal"
	"messhall/internal/menu"
	"messhall/internal/registration"
	"messhall/internal/roster"
	"messhall/internal/schedule"
)

type studentRow struct {
	ID           string        `db:"id"`
	RollNo       string        `db:"roll_no"`
	Name         string        `db:"name"`
	Email        string        `db:"email"`
	Branch       string        `db:"branch"`
	Hostel       string        `db:"hostel"`
	Mess         string        `db:"mess"`
	Room         string        `db:"room"`
	Phone        string        `db:"phone"`
	Photo        string        `db:"photo"`
	PasswordHash string        `db:"password_hash"`
	Status       string        `db:"status"`
	CreatedAt    int64         `db:"created_at_ms"`
	ApprovedAt   sql.NullInt64 `db:"approved_at_ms"`
	DecidedAt    sql.NullInt64 `db:"decided_at_ms"`
}

func (r studentRow) student() roster.Student {
	return roster.Student{
		ID:           r.ID,
		RollNo:       r.RollNo,
		Name:         r.Name,
		Email:        r.Email,
		Branch:       r.Branch,
		Hostel:       r.Hostel,
		Mess:         r.Mess,
		Room:         r.Room,
		Phone:        r.Phone,
		Photo:        r.Photo,
		PasswordHash: r.PasswordHash,
		Status:       roster.Status(r.Status),
		CreatedAt:    fromMillis(r.CreatedAt),
		ApprovedAt:   fromNullMillis(r.ApprovedAt),
		DecidedAt:    fromNullMillis(r.DecidedAt),
	}
}

const studentColumns = `id, roll_no, name, email, branch, hostel, mess, room, phone, photo, password_hash, status, created_at_ms, approved_at_ms, decided_at_ms`

// CreateStudent inserts a registration; a taken email yields ErrEmailTaken.
func (s *SQL) CreateStudent(ctx context.Context, st roster.Student) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING
	`), st.ID, st.RollNo, st.Name, st.Email, st.Branch, st.Hostel, st.Mess, st.Room, st.Phone, st.Photo,
		st.PasswordHash, string(st.Status), toMillis(st.CreatedAt), nullMillis(st.ApprovedAt), nullMillis(st.DecidedAt))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return registration.ErrEmailTaken
	}
	return nil
}

func (s *SQL) studentBy(ctx context.Context, column, value string) (roster.Student, error) {
	var row studentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+studentColumns+` FROM students WHERE `+column+` = ?`), value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.Student{}, roster.ErrNotFound
		}
		return roster.Student{}, err
	}
	return row.student(), nil
}

// StudentByID returns a registration by id.
func (s *SQL) StudentByID(ctx context.Context, id string) (roster.Student, error) {
	return s.studentBy(ctx, "id", id)
}

// StudentByEmail returns a registration by email.
func (s *SQL) StudentByEmail(ctx context.Context, email string) (roster.Student, error) {
	return s.studentBy(ctx, "email", email)
}

// ListStudents returns registrations newest first.
func (s *SQL) ListStudents(ctx context.Context, status roster.Status) ([]roster.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at_ms DESC`
	var rows []studentRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]roster.Student, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.student())
	}
	return out, nil
}

// UpdateStudentStatus records an admin decision on a pending registration.
// A decided row yields ErrInvalidTransition.
func (s *SQL) UpdateStudentStatus(ctx context.Context, id string, status roster.Status, at time.Time) error {
	var approved sql.NullInt64
	if status == roster.StatusApproved {
		approved = sql.NullInt64{Int64: toMillis(at), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE students
		SET status = ?, decided_at_ms = ?, approved_at_ms = COALESCE(?, approved_at_ms)
		WHERE id = ? AND status = ?
	`), string(status), toMillis(at), approved, id, string(roster.StatusPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}
	if _, err := s.StudentByID(ctx, id); err != nil {
		return err
	}
	return registration.ErrInvalidTransition
}

type scanRow struct {
	ID          string `db:"id"`
	StudentID   string `db:"student_id"`
	RollNo      string `db:"roll_no"`
	StudentName string `db:"student_name"`
	Meal        string `db:"meal_type"`
	MessName    string `db:"mess_name"`
	ScannedAt   int64  `db:"scanned_at_ms"`
	Day         string `db:"day"`
}

const scanColumns = `id, student_id, roll_no, student_name, meal_type, mess_name, scanned_at_ms, day`

// AppendScan relies on the (student_id, meal_type, day) unique index for the
// duplicate check.
func (s *SQL) AppendScan(ctx context.Context, rec attendance.ScanRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO scans (`+scanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, meal_type, day) DO NOTHING
	`), rec.ID, rec.StudentID, rec.RollNo, rec.StudentName, string(rec.Meal), rec.MessName, toMillis(rec.Timestamp), rec.Day)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementHeadCount bumps one meal bucket and the total for day.
func (s *SQL) IncrementHeadCount(ctx context.Context, day string, m meal.Type) error {
	var hc attendance.HeadCount
	hc.Add(m)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO head_counts (day, breakfast, lunch, dinner, total)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (day) DO UPDATE SET
			breakfast = head_counts.breakfast + excluded.breakfast,
			lunch = head_counts.lunch + excluded.lunch,
			dinner = head_counts.dinner + excluded.dinner,
			total = head_counts.total + excluded.total
	`), day, hc.Breakfast, hc.Lunch, hc.Dinner, hc.Total)
	return err
}

func scanWhere(f attendance.ScanFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.Meal != "" {
		clauses = append(clauses, "meal_type = ?")
		args = append(args, string(f.Meal))
	}
	if f.FromDay != "" {
		clauses = append(clauses, "day >= ?")
		args = append(args, f.FromDay)
	}
	if f.ToDay != "" {
		clauses = append(clauses, "day <= ?")
		args = append(args, f.ToDay)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListScans returns matching scans oldest first; Limit keeps the newest.
func (s *SQL) ListScans(ctx context.Context, f attendance.ScanFilter) ([]attendance.ScanRecord, error) {
	where, args := scanWhere(f)
	query := `SELECT ` + scanColumns + ` FROM scans` + where + ` ORDER BY scanned_at_ms DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	var rows []scanRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]attendance.ScanRecord, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = attendance.ScanRecord{
			ID:          r.ID,
			StudentID:   r.StudentID,
			RollNo:      r.RollNo,
			StudentName: r.StudentName,
			Meal:        meal.Type(r.Meal),
			MessName:    r.MessName,
			Timestamp:   fromMillis(r.ScannedAt),
			Day:         r.Day,
		}
	}
	return out, nil
}

// DeleteScans removes matching scans. Head counts are left to the caller.
func (s *SQL) DeleteScans(ctx context.Context, f attendance.ScanFilter) (int, error) {
	where, args := scanWhere(f)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM scans`+where), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type headCountRow struct {
	Day       string `db:"day"`
	Breakfast int    `db:"breakfast"`
	Lunch     int    `db:"lunch"`
	Dinner    int    `db:"dinner"`
	Total     int    `db:"total"`
}

// HeadCounts returns the stored view.
func (s *SQL) HeadCounts(ctx context.Context) ([]attendance.HeadCount, error) {
	var rows []headCountRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT day, breakfast, lunch, dinner, total FROM head_counts ORDER BY day`); err != nil {
		return nil, err
	}
	out := make([]attendance.HeadCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, attendance.HeadCount{Date: r.Day, Breakfast: r.Breakfast, Lunch: r.Lunch, Dinner: r.Dinner, Total: r.Total})
	}
	return out, nil
}

// ReplaceHeadCounts rewrites the view in one transaction.
func (s *SQL) ReplaceHeadCounts(ctx context.Context, counts []attendance.HeadCount) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM head_counts`); err != nil {
			return err
		}
		insert := tx.Rebind(`INSERT INTO head_counts (day, breakfast, lunch, dinner, total) VALUES (?, ?, ?, ?, ?)`)
		for _, hc := range counts {
			if _, err := tx.ExecContext(ctx, insert, hc.Date, hc.Breakfast, hc.Lunch, hc.Dinner, hc.Total); err != nil {
				return err
			}
		}
		return nil
	})
}

type menuRow struct {
	ID          string `db:"id"`
	Weekday     string `db:"weekday"`
	Meal        string `db:"meal_type"`
	Name        string `db:"name"`
	Description string `db:"description"`
	IsVeg       bool   `db:"is_veg"`
}

// MenuItems returns every stored slot in item order.
func (s *SQL) MenuItems(ctx context.Context) (map[menu.Slot][]menu.Item, error) {
	var rows []menuRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, weekday, meal_type, name, description, is_veg
		FROM menu_items ORDER BY weekday, meal_type, sort_order
	`); err != nil {
		return nil, err
	}
	out := make(map[menu.Slot][]menu.Item)
	for _, r := range rows {
		slot := menu.Slot{Day: r.Weekday, Meal: meal.Type(r.Meal)}
		out[slot] = append(out[slot], menu.Item{ID: r.ID, Name: r.Name, Description: r.Description, IsVeg: r.IsVeg})
	}
	return out, nil
}

// ReplaceMenuItems swaps the contents of one slot.
func (s *SQL) ReplaceMenuItems(ctx context.Context, slot menu.Slot, items []menu.Item) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM menu_items WHERE weekday = ? AND meal_type = ?`), slot.Day, string(slot.Meal)); err != nil {
			return err
		}
		for i, it := range items {
			if err := insertMenuItem(ctx, tx, slot, it, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddMenuItem appends to a slot.
func (s *SQL) AddMenuItem(ctx context.Context, slot menu.Slot, item menu.Item) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var next int
		if err := tx.GetContext(ctx, &next, tx.Rebind(`
			SELECT COALESCE(MAX(sort_order) + 1, 0) FROM menu_items WHERE weekday = ? AND meal_type = ?
		`), slot.Day, string(slot.Meal)); err != nil {
			return err
		}
		return insertMenuItem(ctx, tx, slot, item, next)
	})
}

func insertMenuItem(ctx context.Context, tx *sqlx.Tx, slot menu.Slot, it menu.Item, order int) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO menu_items (id, weekday, meal_type, sort_order, name, description, is_veg)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), it.ID, slot.Day, string(slot.Meal), order, it.Name, it.Description, it.IsVeg)
	return err
}

// RemoveMenuItem deletes one item from a slot.
func (s *SQL) RemoveMenuItem(ctx context.Context, slot menu.Slot, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		DELETE FROM menu_items WHERE id = ? AND weekday = ? AND meal_type = ?
	`), id, slot.Day, string(slot.Meal))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type feedbackRow struct {
	ID          string `db:"id"`
	StudentID   string `db:"student_id"`
	StudentName string `db:"student_name"`
	Category    string `db:"category"`
	Message     string `db:"message"`
	Status      string `db:"status"`
	CreatedAt   int64  `db:"created_at_ms"`
}

func (r feedbackRow) entry() feedback.Entry {
	return feedback.Entry{
		ID:          r.ID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		Category:    r.Category,
		Message:     r.Message,
		Status:      feedback.Status(r.Status),
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

const feedbackColumns = `id, student_id, student_name, category, message, status, created_at_ms`

// CreateFeedback stores a new entry.
func (s *SQL) CreateFeedback(ctx context.Context, e feedback.Entry) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO feedback (`+feedbackColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`), e.ID, e.StudentID, e.StudentName, e.Category, e.Message, string(e.Status), toMillis(e.CreatedAt))
	return err
}

// Feedback returns one entry.
func (s *SQL) Feedback(ctx context.Context, id string) (feedback.Entry, error) {
	var row feedbackRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return feedback.Entry{}, feedback.ErrNotFound
		}
		return feedback.Entry{}, err
	}
	return row.entry(), nil
}

// ListFeedback returns entries newest first.
func (s *SQL) ListFeedback(ctx context.Context, status feedback.Status) ([]feedback.Entry, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at_ms DESC, id DESC`
	var rows []feedbackRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]feedback.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

// SetFeedbackStatus updates an entry's status.
func (s *SQL) SetFeedbackStatus(ctx context.Context, id string, status feedback.Status) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE feedback SET status = ? WHERE id = ?`), string(status), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return feedback.ErrNotFound
	}
	return nil
}

type timingRow struct {
	Weekday   string `db:"weekday"`
	Breakfast string `db:"breakfast"`
	Lunch     string `db:"lunch"`
	Dinner    string `db:"dinner"`
}

// ScheduleTimings returns the stored weekday overrides.
func (s *SQL) ScheduleTimings(ctx context.Context) (map[string]schedule.Timing, error) {
	var rows []timingRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT weekday, breakfast, lunch, dinner FROM schedule_timings`); err != nil {
		return nil, err
	}
	out := make(map[string]schedule.Timing, len(rows))
	for _, r := range rows {
		out[r.Weekday] = schedule.Timing{Day: r.Weekday, Breakfast: r.Breakfast, Lunch: r.Lunch, Dinner: r.Dinner}
	}
	return out, nil
}

// PutScheduleTiming upserts one weekday.
func (s *SQL) PutScheduleTiming(ctx context.Context, t schedule.Timing) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO schedule_timings (weekday, breakfast, lunch, dinner)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (weekday) DO UPDATE SET
			breakfast = excluded.breakfast,
			lunch = excluded.lunch,
			dinner = excluded.dinner
	`), t.Day, t.Breakfast, t.Lunch, t.Dinner)
	return err
}

type noticeRow struct {
	ID        string `db:"id"`
	Severity  string `db:"severity"`
	Message   string `db:"message"`
	Date      string `db:"notice_date"`
	CreatedAt int64  `db:"created_at_ms"`
}

const noticeColumns = `id, severity, message, notice_date, created_at_ms`

// Notices returns every notice in posting order.
func (s *SQL) Notices(ctx context.Context) ([]schedule.Notice, error) {
	var rows []noticeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+noticeColumns+` FROM notices ORDER BY created_at_ms, id`); err != nil {
		return nil, err
	}
	out := make([]schedule.Notice, 0, len(rows))
	for _, r := range rows {
		out = append(out, schedule.Notice{
			ID:        r.ID,
			Severity:  schedule.Severity(r.Severity),
			Message:   r.Message,
			Date:      r.Date,
			CreatedAt: fromMillis(r.CreatedAt),
		})
	}
	return out, nil
}

// CreateNotice stores a new notice.
func (s *SQL) CreateNotice(ctx context.Context, n schedule.Notice) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO notices (`+noticeColumns+`) VALUES (?, ?, ?, ?, ?)
	`), n.ID, string(n.Severity), n.Message, n.Date, toMillis(n.CreatedAt))
	return err
}

// UpdateNotice rewrites the editable fields of a notice.
func (s *SQL) UpdateNotice(ctx context.Context, n schedule.Notice) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE notices SET severity = ?, message = ?, notice_date = ? WHERE id = ?
	`), string(n.Severity), n.Message, n.Date, n.ID)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return schedule.ErrNoticeNotFound
	}
	return nil
}

// DeleteNotice removes a notice.
func (s *SQL) DeleteNotice(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM notices WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
