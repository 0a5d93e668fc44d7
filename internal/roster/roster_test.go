package roster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapDirectory map[string]Student

func (m mapDirectory) StudentByEmail(_ context.Context, email string) (Student, error) {
	st, ok := m[email]
	if !ok {
		return Student{}, ErrNotFound
	}
	return st, nil
}

type brokenDirectory struct{}

func (brokenDirectory) StudentByEmail(context.Context, string) (Student, error) {
	return Student{}, errors.New("disk on fire")
}

func approved() Student {
	return Student{ID: "s-1", Email: "a@nitw.ac.in", RollNo: "123", Name: "A", Mess: "krishna", Status: StatusApproved}
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload([]byte(`{"email":"a@nitw.ac.in","rollNo":"123","name":"A","messName":"krishna","branch":"CSE"}`))
	require.NoError(t, err)
	assert.Equal(t, Payload{Email: "a@nitw.ac.in", RollNo: "123", Name: "A", MessName: "krishna"}, p)

	for _, raw := range []string{
		``,
		`not json`,
		`{"email":"a@nitw.ac.in","rollNo":"123","name":"A"}`,
		`{"email":"nope","rollNo":"123","name":"A","messName":"krishna"}`,
		`{"email":"a@nitw.ac.in","rollNo":123,"name":"A","messName":"krishna"}`,
	} {
		_, err := ParsePayload([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidPayload, "raw %q", raw)
	}
}

func TestResolve(t *testing.T) {
	pending := approved()
	pending.Email = "p@nitw.ac.in"
	pending.Status = StatusPending
	l := NewLookup(mapDirectory{"a@nitw.ac.in": approved(), "p@nitw.ac.in": pending})
	ctx := context.Background()

	st, err := l.Resolve(ctx, Payload{Email: "a@nitw.ac.in", RollNo: "123", Name: "A", MessName: "krishna"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", st.ID)

	_, err = l.Resolve(ctx, Payload{Email: "x@nitw.ac.in", RollNo: "123", Name: "A", MessName: "krishna"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Resolve(ctx, Payload{Email: "p@nitw.ac.in", RollNo: "123", Name: "A", MessName: "krishna"})
	assert.ErrorIs(t, err, ErrNotFound)

	for _, p := range []Payload{
		{Email: "a@nitw.ac.in", RollNo: "124", Name: "A", MessName: "krishna"},
		{Email: "a@nitw.ac.in", RollNo: "123", Name: "B", MessName: "krishna"},
		{Email: "a@nitw.ac.in", RollNo: "123", Name: "A", MessName: "veg"},
	} {
		_, err := l.Resolve(ctx, p)
		assert.ErrorIs(t, err, ErrDataMismatch)
	}
}

func TestResolveStorageError(t *testing.T) {
	_, err := NewLookup(brokenDirectory{}).Resolve(context.Background(), Payload{Email: "a@nitw.ac.in"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
