package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/paulexconde/bizassess/internal/config"
	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/internal/pkg/retry"
	"github.com/paulexconde/bizassess/internal/services"
	"github.com/paulexconde/bizassess/pkg/fault"
	"github.com/paulexconde/bizassess/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "bizassess",
			"POSTGRES_PASSWORD": "bizassess",
			"POSTGRES_DB":       "bizassess",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.Default().Database
	cfg.DSN = fmt.Sprintf("postgres://bizassess:bizassess@%s:%s/bizassess?sslmode=disable", host, port.Port())

	db, err := Open(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.EnsureSchema(ctx))
	// A second run must be a no-op.
	require.NoError(t, db.EnsureSchema(ctx))
	return db
}

func structure() models.Structure {
	return models.Structure{
		{ID: "cat1", Name: "Finance", Subcategories: []models.Subcategory{
			{ID: "sub1", Name: "Cash", Questions: []models.Question{
				{ID: 1, Text: "Q", Answers: []models.Answer{{ID: 1, Text: "No", Value: 1}, {ID: 2, Text: "Yes", Value: 2}}},
			}},
		}},
	}
}

func TestPostgresLifecycle(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	stores := db.Stores()
	log := logger.Nop()

	catalog := services.NewCatalogService(stores, log, nil)
	versions := services.NewVersionService(stores, services.NewStructureValidator(), log, nil, services.VersionServiceOptions{
		Retry: retry.Config{MaxAttempts: 5, InitialDelay: 5 * time.Millisecond},
	})
	sessions := services.NewSessionService(stores, log, nil)

	admin, err := catalog.RegisterAdmin(ctx, "owner")
	require.NoError(t, err)
	survey, err := catalog.CreateSurvey(ctx, models.SurveyTypeExpress, "Express")
	require.NoError(t, err)

	v1, err := versions.CreateDraftVersion(ctx, survey.ID, "v1", models.SurveyTypeExpress, structure(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, structure(), v1.Structure)

	published, err := versions.PublishVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, published.Status)
	assert.NotNil(t, published.PublishedAt)

	got, err := catalog.GetSurvey(ctx, survey.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LatestPublishedVersionID)
	assert.Equal(t, v1.ID, *got.LatestPublishedVersionID)

	session, err := sessions.StartSession(ctx, survey.ID, 4242)
	require.NoError(t, err)

	v2, err := versions.CreateNewVersionFromExisting(ctx, v1.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	_, err = versions.PublishVersion(ctx, v2.ID)
	require.NoError(t, err)

	old, err := versions.GetVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, old.Status)

	resolved, err := sessions.ResolveSessionVersion(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, resolved.ID)

	_, err = sessions.ResolveSessionVersion(ctx, "not-a-uuid")
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))

	history, err := versions.GetVersionHistory(ctx, survey.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].VersionNumber)
	require.NotNil(t, history[0].CreatedBy)
	assert.Equal(t, "owner", history[0].CreatedBy.TelegramUsername)

	page, err := versions.GetVersionHistoryPage(ctx, survey.ID, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalItems)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].VersionNumber)

	draft := models.StatusDraft
	latest, err := versions.GetLatestVersion(ctx, survey.ID, &draft)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestPostgresConcurrentDrafts(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	stores := db.Stores()
	log := logger.Nop()

	admin, err := stores.Admins.Create(ctx, &models.Admin{TelegramUsername: "owner"})
	require.NoError(t, err)
	survey, err := stores.Surveys.Create(ctx, &models.Survey{Type: models.SurveyTypeFull, Name: "Full"})
	require.NoError(t, err)

	versions := services.NewVersionService(stores, services.NewStructureValidator(), log, nil, services.VersionServiceOptions{
		Retry: retry.Config{MaxAttempts: 5, InitialDelay: 5 * time.Millisecond},
	})

	const writers = 8
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := versions.CreateDraftVersion(ctx, survey.ID, "", models.SurveyTypeFull, structure(), admin.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	latest, err := stores.Versions.MaxVersionNumber(ctx, survey.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, latest)
}

func TestPostgresConstraints(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	stores := db.Stores()

	admin, err := stores.Admins.Create(ctx, &models.Admin{TelegramUsername: "owner"})
	require.NoError(t, err)
	_, err = stores.Admins.Create(ctx, &models.Admin{TelegramUsername: "owner"})
	assert.ErrorIs(t, err, fault.ErrUniqueViolation)

	survey, err := stores.Surveys.Create(ctx, &models.Survey{Type: models.SurveyTypeFull, Name: "Full"})
	require.NoError(t, err)

	insert := func(number int, status models.VersionStatus) (*models.SurveyVersion, error) {
		return stores.Versions.Insert(ctx, &models.SurveyVersion{
			SurveyID:      survey.ID,
			VersionNumber: number,
			Name:          "v",
			Type:          models.SurveyTypeFull,
			Structure:     structure(),
			Status:        status,
			CreatedByID:   admin.ID,
		})
	}

	v1, err := insert(1, models.StatusPublished)
	require.NoError(t, err)

	_, err = insert(1, models.StatusDraft)
	assert.ErrorIs(t, err, fault.ErrUniqueViolation)

	_, err = insert(2, models.StatusPublished)
	assert.ErrorIs(t, err, fault.ErrUniqueViolation, "only one published version per survey")

	_, err = stores.Sessions.Create(ctx, &models.SurveySession{
		ID:              "6f1c2a56-3c1b-4f7e-9b43-2f4f0c1f8d11",
		UserID:          1,
		SurveyID:        survey.ID,
		SurveyVersionID: v1.ID,
		Status:          models.SessionInProgress,
	})
	require.NoError(t, err)

	count, err := stores.Sessions.CountByVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Versions referenced by sessions cannot be removed.
	err = store.InTx(ctx, db.db, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM survey_versions WHERE id = $1", v1.ID)
		return store.Translate(err)
	})
	assert.ErrorIs(t, err, fault.ErrForeignKeyViolation)

	_, err = stores.Pointers.Lock(ctx, survey.ID)
	assert.Error(t, err, "locking outside a transaction")

	require.NoError(t, stores.Surveys.SoftDelete(ctx, survey.ID))
	assert.ErrorIs(t, stores.Surveys.SoftDelete(ctx, survey.ID), fault.ErrNotFound)
	assert.ErrorIs(t, stores.Pointers.SetLatestPublished(ctx, 9999, nil), fault.ErrNotFound)
}

func TestPostgresSurveyLockModes(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	stores := db.Stores()

	survey, err := stores.Surveys.Create(ctx, &models.Survey{Type: models.SurveyTypeExpress, Name: "Express"})
	require.NoError(t, err)

	begin := func() context.Context {
		tx, err := db.db.BeginTxx(ctx, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = tx.Rollback() })
		return store.WithTx(ctx, tx)
	}

	first := begin()
	_, err = stores.Pointers.LockShared(first, survey.ID)
	require.NoError(t, err)

	// A second session start does not queue behind the first.
	second := begin()
	sharedCtx, cancel := context.WithTimeout(second, 2*time.Second)
	defer cancel()
	_, err = stores.Pointers.LockShared(sharedCtx, survey.ID)
	require.NoError(t, err)

	// A publish does wait while sessions hold the row.
	third := begin()
	exclusiveCtx, cancelExclusive := context.WithTimeout(third, 200*time.Millisecond)
	defer cancelExclusive()
	_, err = stores.Pointers.Lock(exclusiveCtx, survey.ID)
	assert.Error(t, err)

	_, err = stores.Pointers.LockShared(ctx, survey.ID)
	assert.Error(t, err, "locking outside a transaction")
}
