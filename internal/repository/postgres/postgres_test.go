package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authcore/internal/models"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func newTenantFixture(t *testing.T, tx pgx.Tx) models.Tenant {
	t.Helper()

	tenant, err := (&TenantRepo{DB: tx}).Create(t.Context(), models.Tenant{
		Name:            "acme",
		Active:          true,
		SigningSecret:   "secret",
		Lockout:         models.LockoutSettings{MaxFailedAttempts: 3, Duration: 15 * time.Minute},
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	})
	require.NoError(t, err, "tenant fixture should be created")
	return tenant
}

func newPrincipalFixture(t *testing.T, tx pgx.Tx, tenantID uuid.UUID, email string) models.Principal {
	t.Helper()

	p, err := (&PrincipalRepo{DB: tx}).Create(t.Context(), models.Principal{
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: "hash",
		Active:       true,
	})
	require.NoError(t, err, "principal fixture should be created")
	return p
}
