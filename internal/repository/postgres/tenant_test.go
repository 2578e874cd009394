package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/testutil"
)

func Test_TenantRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create and get", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TenantRepo{DB: tx}
			created := newTenantFixture(t, tx)

			got, err := r.GetByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, "acme", got.Name)
			assert.True(t, got.Active)
			assert.Equal(t, "secret", got.SigningSecret)
			assert.Equal(t, 3, got.Lockout.MaxFailedAttempts)
			assert.Equal(t, 15*time.Minute, got.Lockout.Duration)
			assert.Equal(t, 15*time.Minute, got.AccessTokenTTL)
			assert.Equal(t, 30*24*time.Hour, got.RefreshTokenTTL)
			assert.Nil(t, got.OAuth, "oauth must be disabled if no providers set")
		})
	})

	t.Run("create with oauth", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TenantRepo{DB: tx}
			created, err := r.Create(t.Context(), models.Tenant{
				Name:          "oauth",
				Active:        true,
				SigningSecret: "secret",
				OAuth: &models.OAuthSettings{Providers: map[string]models.OAuthProvider{
					"google": {ClientID: "cid", ClientSecret: "csecret", Scopes: []string{"openid", "email"}},
				}},
			})
			require.NoError(t, err)

			got, err := r.GetByID(t.Context(), created.ID)

			require.NoError(t, err)
			require.NotNil(t, got.OAuth)
			p, ok := got.OAuth.Provider("google")
			require.True(t, ok)
			assert.Equal(t, "google", p.Name)
			assert.Equal(t, "cid", p.ClientID)
			assert.Equal(t, []string{"openid", "email"}, p.Scopes)
		})
	})

	t.Run("oauth enabled with empty provider list", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TenantRepo{DB: tx}
			created, err := r.Create(t.Context(), models.Tenant{Name: "empty", SigningSecret: "s", OAuth: &models.OAuthSettings{}})
			require.NoError(t, err)

			got, err := r.GetByID(t.Context(), created.ID)

			require.NoError(t, err)
			require.NotNil(t, got.OAuth)
			_, ok := got.OAuth.Provider("google")
			require.False(t, ok)
		})
	})

	t.Run("get not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TenantRepo{DB: tx}

			_, err := r.GetByID(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrTenantNotFound)
		})
	})

	t.Run("update secret", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TenantRepo{DB: tx}
			created := newTenantFixture(t, tx)

			err := r.UpdateSecret(t.Context(), created.ID, "new-secret")
			require.NoError(t, err)

			got, err := r.GetByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, "new-secret", got.SigningSecret)
		})
	})

	t.Run("update secret of unknown tenant", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TenantRepo{DB: tx}

			err := r.UpdateSecret(t.Context(), uuid.New(), "new-secret")

			require.ErrorIs(t, err, apperrors.ErrTenantNotFound)
		})
	})

	t.Run("upsert provider", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TenantRepo{DB: tx}
			created := newTenantFixture(t, tx)

			err := r.UpsertOAuthProvider(t.Context(), created.ID, models.OAuthProvider{Name: "github", ClientID: "first"})
			require.NoError(t, err)
			err = r.UpsertOAuthProvider(t.Context(), created.ID, models.OAuthProvider{Name: "github", ClientID: "second"})
			require.NoError(t, err)

			got, err := r.GetByID(t.Context(), created.ID)
			require.NoError(t, err)
			p, ok := got.OAuth.Provider("github")
			require.True(t, ok, "upsert must turn oauth on")
			require.Equal(t, "second", p.ClientID)
		})
	})
}
