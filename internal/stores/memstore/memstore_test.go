package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store) (models.Survey, models.Admin) {
	t.Helper()
	ctx := context.Background()
	stores := s.Stores()

	admin, err := stores.Admins.Create(ctx, &models.Admin{TelegramUsername: "owner"})
	require.NoError(t, err)
	survey, err := stores.Surveys.Create(ctx, &models.Survey{Type: models.SurveyTypeExpress, Name: "Express"})
	require.NoError(t, err)
	return *survey, *admin
}

func draft(surveyID, adminID int64, number int) *models.SurveyVersion {
	return &models.SurveyVersion{
		SurveyID:      surveyID,
		VersionNumber: number,
		Name:          "Express",
		Type:          models.SurveyTypeExpress,
		Status:        models.StatusDraft,
		CreatedByID:   adminID,
		Structure: models.Structure{
			{ID: "cat1", Name: "Finance", Subcategories: []models.Subcategory{
				{ID: "sub1", Name: "Cash", Questions: []models.Question{{ID: 1, Text: "Q"}}},
			}},
		},
	}
}

func TestInsertEnforcesKeys(t *testing.T) {
	s := New()
	survey, admin := seed(t, s)
	versions := s.Stores().Versions
	ctx := context.Background()

	_, err := versions.Insert(ctx, draft(survey.ID, admin.ID, 1))
	require.NoError(t, err)

	_, err = versions.Insert(ctx, draft(survey.ID, admin.ID, 1))
	assert.ErrorIs(t, err, fault.ErrUniqueViolation)

	_, err = versions.Insert(ctx, draft(999, admin.ID, 1))
	assert.ErrorIs(t, err, fault.ErrForeignKeyViolation)

	_, err = versions.Insert(ctx, draft(survey.ID, 999, 2))
	assert.ErrorIs(t, err, fault.ErrForeignKeyViolation)

	latest, err := versions.MaxVersionNumber(ctx, survey.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := New()
	survey, admin := seed(t, s)
	stores := s.Stores()
	ctx := context.Background()
	boom := errors.New("boom")

	err := stores.Tx.InTx(ctx, func(ctx context.Context) error {
		v, err := stores.Versions.Insert(ctx, draft(survey.ID, admin.ID, 1))
		require.NoError(t, err)
		require.NoError(t, stores.Pointers.SetLatestPublished(ctx, survey.ID, &v.ID))

		// Nested transactions join the outer one.
		require.NoError(t, stores.Tx.InTx(ctx, func(ctx context.Context) error {
			_, err := stores.Versions.Insert(ctx, draft(survey.ID, admin.ID, 2))
			return err
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	history, err := stores.Versions.History(ctx, survey.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	got, err := stores.Pointers.Get(ctx, survey.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LatestPublishedVersionID)
}

func TestReturnedVersionsDoNotAliasStoredStructure(t *testing.T) {
	s := New()
	survey, admin := seed(t, s)
	versions := s.Stores().Versions
	ctx := context.Background()

	in := draft(survey.ID, admin.ID, 1)
	created, err := versions.Insert(ctx, in)
	require.NoError(t, err)

	in.Structure[0].Name = "changed by caller"
	created.Structure[0].Subcategories[0].Name = "changed by caller"

	got, err := versions.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Finance", got.Structure[0].Name)
	assert.Equal(t, "Cash", got.Structure[0].Subcategories[0].Name)
}

func TestSessionsReferenceVersions(t *testing.T) {
	s := New()
	survey, admin := seed(t, s)
	stores := s.Stores()
	ctx := context.Background()

	used, err := stores.Versions.Insert(ctx, draft(survey.ID, admin.ID, 1))
	require.NoError(t, err)

	_, err = stores.Sessions.Create(ctx, &models.SurveySession{
		ID:              "s-1",
		UserID:          42,
		SurveyID:        survey.ID,
		SurveyVersionID: used.ID,
		Status:          models.SessionInProgress,
	})
	require.NoError(t, err)

	_, err = stores.Sessions.Create(ctx, &models.SurveySession{ID: "s-1", SurveyVersionID: used.ID})
	assert.ErrorIs(t, err, fault.ErrUniqueViolation)

	_, err = stores.Sessions.Create(ctx, &models.SurveySession{ID: "s-2", SurveyVersionID: 999})
	assert.ErrorIs(t, err, fault.ErrForeignKeyViolation)

	count, err := stores.Sessions.CountByVersion(ctx, used.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := stores.Sessions.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, used.ID, got.SurveyVersionID)
}

func TestHistoryAndLatest(t *testing.T) {
	s := New()
	survey, admin := seed(t, s)
	versions := s.Stores().Versions
	ctx := context.Background()

	for n := 1; n <= 3; n++ {
		v := draft(survey.ID, admin.ID, n)
		if n == 2 {
			v.Status = models.StatusPublished
		}
		_, err := versions.Insert(ctx, v)
		require.NoError(t, err)
	}

	history, err := versions.History(ctx, survey.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{history[0].VersionNumber, history[1].VersionNumber, history[2].VersionNumber})
	require.NotNil(t, history[0].CreatedBy)
	assert.Equal(t, "owner", history[0].CreatedBy.TelegramUsername)

	latest, err := versions.Latest(ctx, survey.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.VersionNumber)

	published := models.StatusPublished
	latest, err = versions.Latest(ctx, survey.ID, &published)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.VersionNumber)

	archived := models.StatusArchived
	latest, err = versions.Latest(ctx, survey.ID, &archived)
	require.NoError(t, err)
	assert.Nil(t, latest)

	page, err := versions.HistoryPage(ctx, survey.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].VersionNumber)
}

func TestSoftDeleteAndAdmins(t *testing.T) {
	s := New()
	survey, _ := seed(t, s)
	stores := s.Stores()
	ctx := context.Background()

	require.NoError(t, stores.Surveys.SoftDelete(ctx, survey.ID))
	assert.ErrorIs(t, stores.Surveys.SoftDelete(ctx, survey.ID), fault.ErrNotFound)

	got, err := stores.Pointers.Get(ctx, survey.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())

	_, err = stores.Admins.Create(ctx, &models.Admin{TelegramUsername: "owner"})
	assert.ErrorIs(t, err, fault.ErrUniqueViolation)

	_, err = stores.Admins.Get(ctx, 404)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}
