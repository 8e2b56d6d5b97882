package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlflow/internal/domain"
)

var testSeed = []byte(`
tables:
  - name: users
    create: CREATE TABLE users (id INTEGER, name TEXT)
    inserts:
      - INSERT INTO users VALUES (1, 'Alice'), (2, 'Bob')
`)

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(slog.New(slog.DiscardHandler), opts...)
	t.Cleanup(m.Close)
	return m
}

func TestManager_CreateAcquireDelete(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	eng, release, err := m.Acquire(ctx, id, true)
	require.NoError(t, err)
	_, err = eng.Tables(ctx)
	assert.NoError(t, err)
	release()

	require.NoError(t, m.Delete(id))
	_, _, err = m.Acquire(ctx, id, true)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestManager_AcquireUnknownSession(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	_, _, err := m.Acquire(context.Background(), "nope", true)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestManager_DeleteUnknownSession(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, m.Delete("nope"), &notFound)
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	a, err := m.Create(ctx)
	require.NoError(t, err)
	b, err := m.Create(ctx)
	require.NoError(t, err)

	engA, releaseA, err := m.Acquire(ctx, a, false)
	require.NoError(t, err)
	_, err = engA.Exec(ctx, "CREATE TABLE private (id INTEGER)")
	require.NoError(t, err)
	releaseA()

	engB, releaseB, err := m.Acquire(ctx, b, true)
	require.NoError(t, err)
	defer releaseB()
	schemas, err := engB.Tables(ctx)
	require.NoError(t, err)
	assert.Empty(t, schemas, "tables created in one session must not leak into another")
}

func TestManager_SeedApplied(t *testing.T) {
	t.Parallel()

	seed, err := ParseSeed(testSeed)
	require.NoError(t, err)

	m := newManager(t, WithSeed(seed))
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)

	eng, release, err := m.Acquire(ctx, id, true)
	require.NoError(t, err)
	defer release()

	td, err := eng.ScanTable(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, td.Rows, 2)
}

func TestManager_TTLReapsIdleSessions(t *testing.T) {
	t.Parallel()

	m := newManager(t, WithTTL(100*time.Millisecond))
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)

	// Acquire refreshes the idle clock, so wait out the TTL plus a reap
	// cycle before checking.
	time.Sleep(2 * time.Second)
	_, _, err = m.Acquire(ctx, id, true)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound, "idle session should expire")
}

func TestParseSeed_Validation(t *testing.T) {
	t.Parallel()

	_, err := ParseSeed([]byte(`tables: [{name: "", create: "CREATE TABLE t (id INTEGER)"}]`))
	assert.Error(t, err)

	_, err = ParseSeed([]byte(`tables: [{name: t, create: ""}]`))
	assert.Error(t, err)

	_, err = ParseSeed([]byte(`{not yaml`))
	assert.Error(t, err)
}
