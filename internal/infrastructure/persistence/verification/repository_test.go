package verification

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewConnection("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Serialize access; sqlite locks the whole file on write.
	db.SetMaxOpenConns(1)
	require.NoError(t, db.EnsureSchema())
	return db
}

func newPendingSession(t *testing.T, repo *SQLSessionRepository, token, identity string, ttl time.Duration) *verification.Session {
	t.Helper()

	now := time.Now().UTC()
	session := &verification.Session{
		Token:     token,
		Identity:  identity,
		Status:    verification.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl).Unix(),
	}
	require.NoError(t, repo.Create(session))
	return session
}

func TestFindByTokenNotFound(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))

	_, err := repo.FindByToken("no-such-token")
	assert.ErrorIs(t, err, verification.ErrTokenNotFound)
}

func TestCreateGuardsOneLiveSessionPerIdentity(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))
	newPendingSession(t, repo, "tok-one", "walt", time.Hour)

	now := time.Now().UTC()
	second := &verification.Session{
		Token:     "tok-two",
		Identity:  "walt",
		Status:    verification.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
	assert.ErrorIs(t, repo.Create(second), verification.ErrDuplicateIssuance)

	// Resolving the holder frees the identity at the store.
	require.NoError(t, repo.ClaimForSubmission("tok-one", now))
	transitioned, err := repo.Finalize("tok-one", verification.StatusVerified, verification.ActionVerified, "score=0", now)
	require.NoError(t, err)
	require.True(t, transitioned)

	assert.NoError(t, repo.Create(second))
}

func TestReleaseClaimReopensSession(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))
	newPendingSession(t, repo, "tok-redo", "wendy", time.Hour)

	now := time.Now().UTC()
	require.NoError(t, repo.ClaimForSubmission("tok-redo", now))
	require.NoError(t, repo.ReleaseClaim("tok-redo"))

	session, err := repo.FindByToken("tok-redo")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusPending, session.Status)
	assert.False(t, session.Used)

	// The released token is claimable again.
	require.NoError(t, repo.ClaimForSubmission("tok-redo", now))

	// A finalized session never reopens.
	transitioned, err := repo.Finalize("tok-redo", verification.StatusVerified, verification.ActionVerified, "score=0", now)
	require.NoError(t, err)
	require.True(t, transitioned)
	require.NoError(t, repo.ReleaseClaim("tok-redo"))

	session, err = repo.FindByToken("tok-redo")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, session.Status)
}

func TestClaimForSubmission(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))
	newPendingSession(t, repo, "tok-claim", "alice", time.Hour)

	now := time.Now().UTC()
	require.NoError(t, repo.ClaimForSubmission("tok-claim", now))

	session, err := repo.FindByToken("tok-claim")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusSubmitted, session.Status)
	assert.True(t, session.Used)

	// Second claim loses.
	err = repo.ClaimForSubmission("tok-claim", now)
	assert.ErrorIs(t, err, verification.ErrAlreadySubmitted)
}

func TestClaimForSubmissionExpired(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))
	newPendingSession(t, repo, "tok-old", "bob", -time.Minute)

	err := repo.ClaimForSubmission("tok-old", time.Now().UTC())
	assert.ErrorIs(t, err, verification.ErrTokenExpired)
}

func TestClaimForSubmissionUnknownToken(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))

	err := repo.ClaimForSubmission("tok-missing", time.Now().UTC())
	assert.ErrorIs(t, err, verification.ErrTokenNotFound)
}

func TestConcurrentClaimsAcceptExactlyOne(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))
	newPendingSession(t, repo, "tok-race", "carol", time.Hour)

	const racers = 8
	now := time.Now().UTC()

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			errs[slot] = repo.ClaimForSubmission("tok-race", now)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, verification.ErrAlreadySubmitted)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))
	newPendingSession(t, repo, "tok-final", "dave", time.Hour)

	now := time.Now().UTC()
	require.NoError(t, repo.ClaimForSubmission("tok-final", now))

	transitioned, err := repo.Finalize("tok-final", verification.StatusVerified, verification.ActionVerified, "score=0", now)
	require.NoError(t, err)
	assert.True(t, transitioned)

	// Duplicate callback with a contradictory verdict is a no-op.
	transitioned, err = repo.Finalize("tok-final", verification.StatusBanned, verification.ActionBan, "score=100", now)
	require.NoError(t, err)
	assert.False(t, transitioned)

	session, err := repo.FindByToken("tok-final")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, session.Status)
	assert.Equal(t, verification.ActionVerified, session.Action)
	assert.NotNil(t, session.ResolvedAt)
}

func TestFinalizeBeforeSubmissionIsRejected(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))
	newPendingSession(t, repo, "tok-early", "erin", time.Hour)

	transitioned, err := repo.Finalize("tok-early", verification.StatusVerified, verification.ActionVerified, "", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, transitioned)
}

func TestExpireOlderThan(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))
	newPendingSession(t, repo, "tok-stale", "frank", -time.Minute)
	newPendingSession(t, repo, "tok-fresh", "grace", time.Hour)

	submitted := newPendingSession(t, repo, "tok-stale-sub", "heidi", -time.Minute)
	require.NoError(t, repo.ClaimForSubmission(submitted.Token, time.Now().UTC().Add(-2*time.Minute)))

	expired, err := repo.ExpireOlderThan(time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, expired, 2)

	stale, err := repo.FindByToken("tok-stale")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusExpired, stale.Status)

	fresh, err := repo.FindByToken("tok-fresh")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusPending, fresh.Status)

	// A second sweep finds nothing new.
	again, err := repo.ExpireOlderThan(time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFindLiveByIdentity(t *testing.T) {
	repo := NewSQLSessionRepository(newTestDB(t))

	live, err := repo.FindLiveByIdentity("ivan", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, live)

	newPendingSession(t, repo, "tok-live", "ivan", time.Hour)

	live, err = repo.FindLiveByIdentity("ivan", time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, "tok-live", live.Token)

	// Expired sessions do not hold the slot.
	newPendingSession(t, repo, "tok-gone", "judy", -time.Minute)
	live, err = repo.FindLiveByIdentity("judy", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestLinkBumpIsMonotonic(t *testing.T) {
	repo := NewSQLLinkRepository(newTestDB(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Bump("user-b", "user-a", now))
	require.NoError(t, repo.Bump("user-a", "user-b", now))
	require.NoError(t, repo.Bump("user-a", "user-b", now))

	link, err := repo.Find("user-a", "user-b")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, 3, link.Weight)
	assert.Equal(t, "user-a", link.IdentityA)
	assert.Equal(t, "user-b", link.IdentityB)

	// Lookups work in either order.
	reversed, err := repo.Find("user-b", "user-a")
	require.NoError(t, err)
	require.NotNil(t, reversed)
	assert.Equal(t, 3, reversed.Weight)
}

func TestLinkBumpIgnoresDegeneratePairs(t *testing.T) {
	repo := NewSQLLinkRepository(newTestDB(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Bump("", "user-a", now))
	require.NoError(t, repo.Bump("user-a", "user-a", now))

	links, err := repo.FindByIdentity("user-a")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestQuarantineUpsertExtendsActiveEntry(t *testing.T) {
	repo := NewSQLQuarantineRepository(newTestDB(t))
	now := time.Now().UTC()

	first := &verification.Quarantine{
		ID:        "q1",
		Identity:  "mallory",
		UntilTS:   now.Add(time.Hour).Unix(),
		CreatedAt: now,
	}
	require.NoError(t, repo.Upsert(first))

	second := &verification.Quarantine{
		ID:        "q2",
		Identity:  "mallory",
		UntilTS:   now.Add(24 * time.Hour).Unix(),
		CreatedAt: now,
	}
	require.NoError(t, repo.Upsert(second))

	active, err := repo.FindActiveByIdentity("mallory", now)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "q1", active.ID)
	assert.Equal(t, second.UntilTS, active.UntilTS)
}

func TestQuarantineReleaseIsFinal(t *testing.T) {
	repo := NewSQLQuarantineRepository(newTestDB(t))
	now := time.Now().UTC()

	entry := &verification.Quarantine{
		ID:        "q-done",
		Identity:  "oscar",
		UntilTS:   now.Add(-time.Hour).Unix(),
		CreatedAt: now.Add(-25 * time.Hour),
	}
	require.NoError(t, repo.Upsert(entry))

	expired, err := repo.FindExpired(now)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	require.NoError(t, repo.Release(expired[0].ID))

	// Released entries never reappear in the expired set.
	expired, err = repo.FindExpired(now)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestProfileStoreTrimsHistory(t *testing.T) {
	repo := NewSQLProfileRepository(newTestDB(t))
	now := time.Now().UTC()

	for i := 0; i < 7; i++ {
		profile := &verification.Profile{
			ID:        ulidAt(i),
			Identity:  "peggy",
			Typing:    []int{100 + i},
			Pointer:   []int{50 + i},
			CreatedAt: now,
		}
		require.NoError(t, repo.Store(profile, 5))
	}

	profiles, err := repo.FindByIdentity("peggy")
	require.NoError(t, err)
	assert.Len(t, profiles, 5)
}

// ulidAt fabricates lexically ordered ids so trim order is deterministic.
func ulidAt(i int) string {
	return string(rune('A'+i)) + "0000000000000000000000000"
}

func TestEvidenceCorrelationCounts(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSQLSessionRepository(db)
	repo := NewSQLEvidenceRepository(db)
	now := time.Now().UTC()

	for i, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		newPendingSession(t, sessions, tok, []string{"ann", "ben", "cal"}[i], time.Hour)
	}

	store := func(id, token, fp, netBlock string) {
		require.NoError(t, repo.Store(&verification.Evidence{
			ID:          id,
			Token:       token,
			Fingerprint: fp,
			NetBlock:    netBlock,
			CreatedAt:   now,
		}))
	}
	store("e1", "tok-1", "fp-shared", "203.0.113.0/24")
	store("e2", "tok-2", "fp-shared", "203.0.113.0/24")
	store("e3", "tok-3", "fp-other", "198.51.100.0/24")

	n, err := repo.CountTokensWithFingerprint("fp-shared", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountTokensWithNetBlock("203.0.113.0/24", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Empty inputs never correlate.
	n, err = repo.CountTokensWithNetBlock("", "tok-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	neighbors, err := repo.IdentitiesSharingNetBlock("203.0.113.0/24", "ann")
	require.NoError(t, err)
	assert.Equal(t, []string{"ben"}, neighbors)
}

func TestActionCountBansMatching(t *testing.T) {
	repo := NewSQLActionRepository(newTestDB(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Append(&verification.Action{
		ID: "a1", Identity: "x", Action: verification.ActionBan,
		Reason: "score=100: network block shared 203.0.113.0/24", CreatedAt: now,
	}))
	require.NoError(t, repo.Append(&verification.Action{
		ID: "a2", Identity: "y", Action: verification.ActionVerified,
		Reason: "score=0 203.0.113.0/24", CreatedAt: now,
	}))

	n, err := repo.CountBansMatching("%203.0.113.0/24%")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
