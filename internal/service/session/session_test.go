package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/repository"
	"github.com/nkiryanov/authcore/internal/repository/postgres"
	"github.com/nkiryanov/authcore/internal/service/credential"
	"github.com/nkiryanov/authcore/internal/service/tokensigner"
	"github.com/nkiryanov/authcore/internal/testutil"
)

const password = "Secret1!"

var meta = models.ClientMeta{IPAddress: "127.0.0.1", UserAgent: "test"}

// recordingSink keeps emitted events
type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) Emit(_ context.Context, events ...models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.EventName())
	}
	return names
}

type fixture struct {
	coordinator *Coordinator
	storage     repository.Storage
	clock       *clock.Fake
	sink        *recordingSink
	signer      *tokensigner.Signer
	hasher      credential.BcryptHasher
}

func newFixture(t *testing.T, db postgres.DBTX) fixture {
	t.Helper()

	c := clock.NewFake(time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC))
	hasher := credential.BcryptHasher{Cost: 4}
	signer, err := tokensigner.New(tokensigner.Config{Clock: c})
	require.NoError(t, err)
	sink := &recordingSink{}
	storage := postgres.NewStorage(db)

	coordinator, err := New(Config{Hasher: hasher, Clock: c, Sink: sink}, storage, signer)
	require.NoError(t, err)

	return fixture{coordinator: coordinator, storage: storage, clock: c, sink: sink, signer: signer, hasher: hasher}
}

func (f fixture) tenant(t *testing.T, opts ...func(*models.Tenant)) models.Tenant {
	t.Helper()

	tenant := models.Tenant{
		Name:            "acme",
		Active:          true,
		SigningSecret:   "tenant-secret",
		Lockout:         models.LockoutSettings{MaxFailedAttempts: 3, Duration: 15 * time.Minute},
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(&tenant)
	}

	created, err := f.storage.Tenant().Create(t.Context(), tenant)
	require.NoError(t, err)
	return created
}

func (f fixture) principal(t *testing.T, tenantID uuid.UUID, email string, opts ...func(*models.Principal)) models.Principal {
	t.Helper()

	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)

	p := models.Principal{TenantID: tenantID, Email: email, PasswordHash: hash, Active: true, EmailVerified: true}
	for _, opt := range opts {
		opt(&p)
	}

	created, err := f.storage.Principal().Create(t.Context(), p)
	require.NoError(t, err)
	return created
}

func Test_Coordinator(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("Login", func(t *testing.T) {
		t.Run("success", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant := f.tenant(t)
				p := f.principal(t, tenant.ID, "p@x.com")

				res, err := f.coordinator.Login(t.Context(), tenant.ID, "P@x.com", password, meta)

				require.NoError(t, err)
				assert.Equal(t, p.ID, res.Principal.ID)
				assert.Equal(t, f.clock.Now().Add(15*time.Minute), res.Tokens.Access.ExpiresAt)
				assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), res.Tokens.Refresh.ExpiresAt.UTC())

				claims, err := f.signer.Verify(res.Tokens.Access.Value, tenant.SigningSecret)
				require.NoError(t, err)
				assert.Equal(t, tenant.ID, claims.TenantID)

				token, err := f.storage.Refresh().Get(t.Context(), HashRefreshToken(res.Tokens.Refresh.Value))
				require.NoError(t, err, "refresh token must be stored by hash")
				assert.Equal(t, "127.0.0.1", token.IPAddress)

				got, err := f.storage.Principal().GetByID(t.Context(), tenant.ID, p.ID)
				require.NoError(t, err)
				require.NotNil(t, got.LastLoginAt)
				assert.Equal(t, []string{"login_succeeded"}, f.sink.names())
			})
		})

		t.Run("unknown tenant", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)

				_, err := f.coordinator.Login(t.Context(), uuid.New(), "p@x.com", password, meta)

				require.ErrorIs(t, err, apperrors.ErrTenantInactive)
			})
		})

		t.Run("inactive tenant", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant := f.tenant(t, func(t *models.Tenant) { t.Active = false })
				f.principal(t, tenant.ID, "p@x.com")

				_, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)

				require.ErrorIs(t, err, apperrors.ErrTenantInactive)
			})
		})

		t.Run("unknown email same as wrong password", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant := f.tenant(t)
				f.principal(t, tenant.ID, "p@x.com")

				_, errUnknown := f.coordinator.Login(t.Context(), tenant.ID, "nobody@x.com", password, meta)
				_, errWrong := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", "wrong", meta)

				require.ErrorIs(t, errUnknown, apperrors.ErrInvalidCredentials)
				require.ErrorIs(t, errWrong, apperrors.ErrInvalidCredentials)
				require.Equal(t, errUnknown.Error(), errWrong.Error(), "messages must not differ")
			})
		})

		t.Run("inactive principal", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant := f.tenant(t)
				f.principal(t, tenant.ID, "p@x.com", func(p *models.Principal) { p.Active = false })

				_, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)

				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			})
		})

		t.Run("lockout scenario", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant := f.tenant(t)
				p := f.principal(t, tenant.ID, "p@x.com")

				for range 3 {
					_, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", "wrong", meta)
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				}

				_, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
				require.ErrorIs(t, err, apperrors.ErrLockedOut, "correct password must not pass while locked")
				var lockedErr *apperrors.LockedOutError
				require.ErrorAs(t, err, &lockedErr)
				assert.Equal(t, 15*time.Minute, lockedErr.Remaining)

				f.clock.Advance(16 * time.Minute)

				res, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
				require.NoError(t, err)
				assert.NotEmpty(t, res.Tokens.Access.Value)

				got, err := f.storage.Principal().GetByID(t.Context(), tenant.ID, p.ID)
				require.NoError(t, err)
				assert.Equal(t, 0, got.FailedLoginAttempts, "success must reset counter")
				assert.Nil(t, got.LockedUntil, "success must clear lock")
			})
		})

		t.Run("lockout revokes sessions", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant := f.tenant(t)
				p := f.principal(t, tenant.ID, "p@x.com")
				res, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
				require.NoError(t, err)

				for range 3 {
					_, _ = f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", "wrong", meta)
				}

				active, err := f.storage.Refresh().ListActiveByPrincipal(t.Context(), p.ID, f.clock.Now())
				require.NoError(t, err)
				assert.Empty(t, active)

				_, err = f.coordinator.Refresh(t.Context(), tenant.ID, res.Tokens.Refresh.Value, meta)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
				assert.Contains(t, f.sink.names(), "principal_locked_out")
			})
		})

		t.Run("counter restarts after lock elapsed", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant := f.tenant(t)
				p := f.principal(t, tenant.ID, "p@x.com")
				for range 3 {
					_, _ = f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", "wrong", meta)
				}
				f.clock.Advance(16 * time.Minute)

				_, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", "wrong", meta)
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "one failure after elapsed lock must not lock again")

				got, err := f.storage.Principal().GetByID(t.Context(), tenant.ID, p.ID)
				require.NoError(t, err)
				assert.Equal(t, 1, got.FailedLoginAttempts)
				assert.Nil(t, got.LockedUntil)
			})
		})

		t.Run("email unverified", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant := f.tenant(t, func(t *models.Tenant) { t.RequireEmailVerification = true })
				p := f.principal(t, tenant.ID, "p@x.com", func(p *models.Principal) {
					p.EmailVerified = false
					p.FailedLoginAttempts = 2
				})

				_, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)

				require.ErrorIs(t, err, apperrors.ErrEmailUnverified)
				got, err := f.storage.Principal().GetByID(t.Context(), tenant.ID, p.ID)
				require.NoError(t, err)
				assert.Equal(t, 0, got.FailedLoginAttempts, "credential check succeeded, counter reset")
				assert.Contains(t, f.sink.names(), "login_succeeded", "persisted success must be reported")

				active, err := f.storage.Refresh().ListActiveByPrincipal(t.Context(), p.ID, f.clock.Now())
				require.NoError(t, err)
				assert.Empty(t, active, "no session for unverified principal")
			})
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		login := func(t *testing.T, f fixture) (models.Tenant, models.Principal, LoginResult) {
			tenant := f.tenant(t)
			p := f.principal(t, tenant.ID, "p@x.com")
			res, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.NoError(t, err)
			return tenant, p, res
		}

		t.Run("rotate", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant, p, first := login(t, f)
				f.clock.Advance(time.Minute)

				second, err := f.coordinator.Refresh(t.Context(), tenant.ID, first.Tokens.Refresh.Value, meta)
				require.NoError(t, err)
				require.NotEqual(t, first.Tokens.Refresh.Value, second.Tokens.Refresh.Value)
				assert.Equal(t, p.ID, second.Principal.ID)

				old, err := f.storage.Refresh().Get(t.Context(), HashRefreshToken(first.Tokens.Refresh.Value))
				require.NoError(t, err)
				require.NotNil(t, old.RevokedAt)
				require.NotNil(t, old.ReplacedBy)
				assert.Equal(t, HashRefreshToken(second.Tokens.Refresh.Value), *old.ReplacedBy)

				third, err := f.coordinator.Refresh(t.Context(), tenant.ID, second.Tokens.Refresh.Value, meta)
				require.NoError(t, err, "rotated token is rotatable once")
				require.NotEqual(t, second.Tokens.Refresh.Value, third.Tokens.Refresh.Value)
			})
		})

		t.Run("reuse revokes chain", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant, _, r1 := login(t, f)
				r2, err := f.coordinator.Refresh(t.Context(), tenant.ID, r1.Tokens.Refresh.Value, meta)
				require.NoError(t, err)

				_, err = f.coordinator.Refresh(t.Context(), tenant.ID, r1.Tokens.Refresh.Value, meta)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)

				token, err := f.storage.Refresh().Get(t.Context(), HashRefreshToken(r2.Tokens.Refresh.Value))
				require.NoError(t, err)
				assert.NotNil(t, token.RevokedAt, "successor must be revoked too")

				_, err = f.coordinator.Refresh(t.Context(), tenant.ID, r2.Tokens.Refresh.Value, meta)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
				assert.Contains(t, f.sink.names(), "refresh_token_reuse_detected")
			})
		})

		t.Run("token of another tenant is left untouched", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				_, _, res := login(t, f)
				other := f.tenant(t)

				_, err := f.coordinator.Refresh(t.Context(), other.ID, res.Tokens.Refresh.Value, meta)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenInvalid)

				token, err := f.storage.Refresh().Get(t.Context(), HashRefreshToken(res.Tokens.Refresh.Value))
				require.NoError(t, err)
				assert.Nil(t, token.RevokedAt, "token must not be rotated through another tenant")
				assert.Nil(t, token.ReplacedBy)
				assert.NotContains(t, f.sink.names(), "refresh_token_rotated")
			})
		})

		t.Run("unknown token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)

				_, err := f.coordinator.Refresh(t.Context(), uuid.New(), "unknown", meta)

				require.ErrorIs(t, err, apperrors.ErrRefreshTokenInvalid)
			})
		})

		t.Run("expired token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant, _, res := login(t, f)
				f.clock.Advance(31 * 24 * time.Hour)

				_, err := f.coordinator.Refresh(t.Context(), tenant.ID, res.Tokens.Refresh.Value, meta)

				require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)
			})
		})

		t.Run("inactive principal", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				f := newFixture(t, tx)
				tenant, p, res := login(t, f)
				p.Active = false
				require.NoError(t, f.storage.Principal().Update(t.Context(), p))

				_, err := f.coordinator.Refresh(t.Context(), tenant.ID, res.Tokens.Refresh.Value, meta)

				require.ErrorIs(t, err, apperrors.ErrPrincipalInactive)
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newFixture(t, tx)
			tenant := f.tenant(t)
			f.principal(t, tenant.ID, "p@x.com")
			res, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.NoError(t, err)

			require.NoError(t, f.coordinator.Logout(t.Context(), res.Tokens.Refresh.Value))
			require.NoError(t, f.coordinator.Logout(t.Context(), res.Tokens.Refresh.Value), "logout is idempotent")
			require.NoError(t, f.coordinator.Logout(t.Context(), "unknown"), "unknown token is not an error")

			_, err = f.coordinator.Refresh(t.Context(), tenant.ID, res.Tokens.Refresh.Value, meta)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
		})
	})

	t.Run("RotateTenantSecret", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newFixture(t, tx)
			tenant := f.tenant(t)
			other := f.tenant(t)
			f.principal(t, tenant.ID, "p@x.com")
			f.principal(t, other.ID, "p@x.com")
			res, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.NoError(t, err)
			otherRes, err := f.coordinator.Login(t.Context(), other.ID, "p@x.com", password, meta)
			require.NoError(t, err)

			err = f.coordinator.RotateTenantSecret(t.Context(), tenant.ID)
			require.NoError(t, err)

			_, err = f.coordinator.Authenticate(t.Context(), res.Tokens.Access.Value)
			require.ErrorIs(t, err, apperrors.ErrAccessTokenInvalid, "old access token must fail right away")
			_, err = f.coordinator.Authenticate(t.Context(), otherRes.Tokens.Access.Value)
			require.NoError(t, err, "other tenant tokens must stay valid")

			_, err = f.coordinator.Refresh(t.Context(), tenant.ID, res.Tokens.Refresh.Value, meta)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)

			fresh, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.NoError(t, err)
			_, err = f.coordinator.Authenticate(t.Context(), fresh.Tokens.Access.Value)
			require.NoError(t, err, "tokens signed with new secret must pass")
		})
	})

	t.Run("RevokePrincipal and RevokeTenant", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newFixture(t, tx)
			tenant := f.tenant(t)
			alice := f.principal(t, tenant.ID, "alice@x.com")
			f.principal(t, tenant.ID, "bob@x.com")
			for _, email := range []string{"alice@x.com", "alice@x.com", "bob@x.com"} {
				_, err := f.coordinator.Login(t.Context(), tenant.ID, email, password, meta)
				require.NoError(t, err)
			}

			count, err := f.coordinator.RevokePrincipal(t.Context(), tenant.ID, alice.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 2, count)

			count, err = f.coordinator.RevokeTenant(t.Context(), tenant.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 1, count, "only bob session left")

			_, err = f.coordinator.RevokePrincipal(t.Context(), uuid.New(), alice.ID)
			require.ErrorIs(t, err, apperrors.ErrPrincipalNotFound, "principal of other tenant can't be revoked")
		})
	})

	t.Run("LockPrincipal", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newFixture(t, tx)
			tenant := f.tenant(t)
			p := f.principal(t, tenant.ID, "p@x.com")
			_, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.NoError(t, err)

			until, err := f.coordinator.LockPrincipal(t.Context(), tenant.ID, p.ID, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, f.clock.Now().Add(time.Hour), until)

			sessions, err := f.coordinator.Sessions(t.Context(), tenant.ID, p.ID)
			require.NoError(t, err)
			assert.Empty(t, sessions)

			_, err = f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.ErrorIs(t, err, apperrors.ErrLockedOut)
		})
	})

	t.Run("ChangePassword", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newFixture(t, tx)
			tenant := f.tenant(t)
			p := f.principal(t, tenant.ID, "p@x.com")
			res, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.NoError(t, err)

			err = f.coordinator.ChangePassword(t.Context(), tenant.ID, p.ID, "wrong", "NewSecret2!")
			require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

			err = f.coordinator.ChangePassword(t.Context(), tenant.ID, p.ID, password, "NewSecret2!")
			require.NoError(t, err)

			_, err = f.coordinator.Refresh(t.Context(), tenant.ID, res.Tokens.Refresh.Value, meta)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked, "sessions must be revoked on password change")
			_, err = f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			_, err = f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", "NewSecret2!", meta)
			require.NoError(t, err)
		})
	})

	t.Run("Register", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newFixture(t, tx)
			tenant := f.tenant(t)

			p, err := f.coordinator.Register(t.Context(), tenant.ID, " new@x.com ", password)
			require.NoError(t, err)
			assert.Equal(t, "new@x.com", p.Email)
			assert.False(t, p.EmailVerified)

			_, err = f.coordinator.Register(t.Context(), tenant.ID, "NEW@x.com", password)
			require.ErrorIs(t, err, apperrors.ErrPrincipalAlreadyExists)

			_, err = f.coordinator.Login(t.Context(), tenant.ID, "new@x.com", password, meta)
			require.NoError(t, err)
		})
	})

	t.Run("IssueSession", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newFixture(t, tx)
			tenant := f.tenant(t)
			p := f.principal(t, tenant.ID, "p@x.com")
			locked := f.principal(t, tenant.ID, "locked@x.com", func(p *models.Principal) {
				until := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
				p.LockedUntil = &until
			})

			res, err := f.coordinator.IssueSession(t.Context(), tenant.ID, p.ID, meta)
			require.NoError(t, err)
			assert.Equal(t, p.ID, res.Principal.ID)

			_, err = f.coordinator.IssueSession(t.Context(), tenant.ID, locked.ID, meta)
			require.ErrorIs(t, err, apperrors.ErrLockedOut)
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newFixture(t, tx)
			tenant := f.tenant(t)
			p := f.principal(t, tenant.ID, "p@x.com")
			res, err := f.coordinator.Login(t.Context(), tenant.ID, "p@x.com", password, meta)
			require.NoError(t, err)

			identity, err := f.coordinator.Authenticate(t.Context(), res.Tokens.Access.Value)
			require.NoError(t, err)
			assert.Equal(t, p.ID, identity.PrincipalID)
			assert.Equal(t, tenant.ID, identity.TenantID)

			f.clock.Advance(16 * time.Minute)
			_, err = f.coordinator.Authenticate(t.Context(), res.Tokens.Access.Value)
			require.ErrorIs(t, err, apperrors.ErrAccessTokenExpired)
		})
	})

	// Runs on pool directly: each rotation needs its own transaction
	t.Run("concurrent rotation has one winner", func(t *testing.T) {
		f := newFixture(t, pg.Pool)
		tenant := f.tenant(t)
		p := f.principal(t, tenant.ID, "race@x.com")
		res, err := f.coordinator.Login(t.Context(), tenant.ID, "race@x.com", password, meta)
		require.NoError(t, err)

		const workers = 5
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
			revoked int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.coordinator.Refresh(context.Background(), tenant.ID, res.Tokens.Refresh.Value, meta)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					success++
				case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
					revoked++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, success, "exactly one rotation must win")
		assert.Equal(t, workers-1, revoked, "losers must see reuse")

		active, err := f.storage.Refresh().ListActiveByPrincipal(t.Context(), p.ID, f.clock.Now())
		require.NoError(t, err)
		assert.Empty(t, active, "reuse cascade must revoke winner successor too")
	})

	// Runs on pool directly: each failed login commits its own transaction
	t.Run("concurrent failed logins are all counted", func(t *testing.T) {
		f := newFixture(t, pg.Pool)
		tenant := f.tenant(t, func(tn *models.Tenant) {
			tn.Lockout = models.LockoutSettings{MaxFailedAttempts: 100, Duration: time.Minute}
		})
		p := f.principal(t, tenant.ID, "brute@x.com")

		const workers = 10
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.coordinator.Login(context.Background(), tenant.ID, "brute@x.com", "wrong", meta)
				assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			}()
		}
		wg.Wait()

		got, err := f.storage.Principal().GetByID(t.Context(), tenant.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, workers, got.FailedLoginAttempts, "row lock must serialize counter updates")
	})
}
