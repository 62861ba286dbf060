// Package memstore keeps surveys, versions, sessions and admins in process memory.
//
// It enforces the same keys and references as the Postgres schema. A
// transaction holds the store lock for its whole duration and restores a
// snapshot when it fails, so transactions are serializable.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/internal/pkg/paginator"
	"github.com/paulexconde/bizassess/internal/services"
	"github.com/paulexconde/bizassess/pkg/fault"
)

type state struct {
	surveys  map[int64]models.Survey
	versions map[int64]models.SurveyVersion
	sessions map[string]models.SurveySession
	admins   map[int64]models.Admin

	nextSurveyID  int64
	nextVersionID int64
	nextAdminID   int64
}

func newState() *state {
	return &state{
		surveys:  map[int64]models.Survey{},
		versions: map[int64]models.SurveyVersion{},
		sessions: map[string]models.SurveySession{},
		admins:   map[int64]models.Admin{},
	}
}

// clone copies the maps. Stored structures are never mutated in place, so
// they can be shared between snapshots.
func (st *state) clone() *state {
	out := &state{
		surveys:       make(map[int64]models.Survey, len(st.surveys)),
		versions:      make(map[int64]models.SurveyVersion, len(st.versions)),
		sessions:      make(map[string]models.SurveySession, len(st.sessions)),
		admins:        make(map[int64]models.Admin, len(st.admins)),
		nextSurveyID:  st.nextSurveyID,
		nextVersionID: st.nextVersionID,
		nextAdminID:   st.nextAdminID,
	}
	for k, v := range st.surveys {
		out.surveys[k] = v
	}
	for k, v := range st.versions {
		out.versions[k] = v
	}
	for k, v := range st.sessions {
		out.sessions[k] = v
	}
	for k, v := range st.admins {
		out.admins[k] = v
	}
	return out
}

type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

func New() *Store {
	return &Store{data: newState(), now: time.Now}
}

// Stores returns the service persistence backed by s.
func (s *Store) Stores() services.Stores {
	return services.Stores{
		Tx:       s,
		Versions: &versionStore{s},
		Pointers: &surveyStore{s},
		Sessions: &sessionStore{s},
		Surveys:  &surveyStore{s},
		Admins:   &adminStore{s},
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// view runs fn under the store lock unless ctx already holds it.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(s.data)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// update is view for writes: a failing fn leaves no partial change behind.
func (s *Store) update(ctx context.Context, fn func(st *state) error) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		return fn(s.data)
	})
}

func copyVersion(v models.SurveyVersion) models.SurveyVersion {
	v.Structure = v.Structure.Clone()
	if v.PublishedAt != nil {
		t := *v.PublishedAt
		v.PublishedAt = &t
	}
	v.CreatedBy = nil
	return v
}

func copySurvey(sv models.Survey) models.Survey {
	if sv.LatestPublishedVersionID != nil {
		id := *sv.LatestPublishedVersionID
		sv.LatestPublishedVersionID = &id
	}
	if sv.DeletedAt != nil {
		t := *sv.DeletedAt
		sv.DeletedAt = &t
	}
	return sv
}

func uniqueViolation(constraint string) error {
	return fmt.Errorf("%w: %s", fault.ErrUniqueViolation, constraint)
}

func foreignKeyViolation(constraint string) error {
	return fmt.Errorf("%w: %s", fault.ErrForeignKeyViolation, constraint)
}

type versionStore struct{ s *Store }

func (r *versionStore) Insert(ctx context.Context, version *models.SurveyVersion) (*models.SurveyVersion, error) {
	var created models.SurveyVersion

	err := r.s.update(ctx, func(st *state) error {
		if _, ok := st.surveys[version.SurveyID]; !ok {
			return foreignKeyViolation("survey_versions_survey_id_fkey")
		}
		if _, ok := st.admins[version.CreatedByID]; !ok {
			return foreignKeyViolation("survey_versions_created_by_id_fkey")
		}
		for _, existing := range st.versions {
			if existing.SurveyID == version.SurveyID && existing.VersionNumber == version.VersionNumber {
				return uniqueViolation("survey_versions_survey_id_version_key")
			}
		}

		now := r.s.now().UTC()
		st.nextVersionID++

		created = copyVersion(*version)
		created.ID = st.nextVersionID
		created.CreatedAt = now
		created.UpdatedAt = now
		st.versions[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := copyVersion(created)
	return &out, nil
}

func (r *versionStore) Get(ctx context.Context, id int64) (*models.SurveyVersion, error) {
	var found models.SurveyVersion

	err := r.s.view(ctx, func(st *state) error {
		v, ok := st.versions[id]
		if !ok {
			return fault.ErrNotFound
		}
		found = copyVersion(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *versionStore) Save(ctx context.Context, version *models.SurveyVersion) (*models.SurveyVersion, error) {
	var saved models.SurveyVersion

	err := r.s.update(ctx, func(st *state) error {
		current, ok := st.versions[version.ID]
		if !ok {
			return fault.ErrNotFound
		}

		current.Name = version.Name
		current.Structure = version.Structure.Clone()
		current.Status = version.Status
		if version.PublishedAt != nil {
			t := *version.PublishedAt
			current.PublishedAt = &t
		}
		current.UpdatedAt = r.s.now().UTC()

		st.versions[current.ID] = current
		saved = copyVersion(current)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *versionStore) MaxVersionNumber(ctx context.Context, surveyID int64) (int, error) {
	latest := 0
	err := r.s.view(ctx, func(st *state) error {
		for _, v := range st.versions {
			if v.SurveyID == surveyID && v.VersionNumber > latest {
				latest = v.VersionNumber
			}
		}
		return nil
	})
	return latest, err
}

// ofSurvey returns the survey's versions, highest version number first.
func ofSurvey(st *state, surveyID int64, keep func(models.SurveyVersion) bool) []models.SurveyVersion {
	out := []models.SurveyVersion{}
	for _, v := range st.versions {
		if v.SurveyID == surveyID && (keep == nil || keep(v)) {
			out = append(out, copyVersion(v))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VersionNumber > out[j].VersionNumber
	})
	return out
}

func (r *versionStore) Latest(ctx context.Context, surveyID int64, status *models.VersionStatus) (*models.SurveyVersion, error) {
	var latest *models.SurveyVersion

	err := r.s.view(ctx, func(st *state) error {
		matches := ofSurvey(st, surveyID, func(v models.SurveyVersion) bool {
			return status == nil || v.Status == *status
		})
		if len(matches) > 0 {
			latest = &matches[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func (r *versionStore) History(ctx context.Context, surveyID int64) ([]models.SurveyVersion, error) {
	var history []models.SurveyVersion

	err := r.s.view(ctx, func(st *state) error {
		history = ofSurvey(st, surveyID, nil)
		for i := range history {
			if admin, ok := st.admins[history[i].CreatedByID]; ok {
				history[i].CreatedBy = &admin
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (r *versionStore) HistoryPage(ctx context.Context, surveyID int64, page, limit int) (*paginator.PaginatedResponse[models.SurveyVersion], error) {
	history, err := r.History(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return paginator.Slice(history, page, limit), nil
}

func (r *versionStore) ListByStatus(ctx context.Context, surveyID int64, status models.VersionStatus) ([]models.SurveyVersion, error) {
	var out []models.SurveyVersion

	err := r.s.view(ctx, func(st *state) error {
		out = ofSurvey(st, surveyID, func(v models.SurveyVersion) bool {
			return v.Status == status
		})
		return nil
	})
	return out, err
}

type surveyStore struct{ s *Store }

func (r *surveyStore) Create(ctx context.Context, survey *models.Survey) (*models.Survey, error) {
	var created models.Survey

	err := r.s.update(ctx, func(st *state) error {
		st.nextSurveyID++
		created = copySurvey(*survey)
		created.ID = st.nextSurveyID
		created.LatestPublishedVersionID = nil
		created.DeletedAt = nil
		created.CreatedAt = r.s.now().UTC()
		st.surveys[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *surveyStore) Get(ctx context.Context, surveyID int64) (*models.Survey, error) {
	var found models.Survey

	err := r.s.view(ctx, func(st *state) error {
		survey, ok := st.surveys[surveyID]
		if !ok {
			return fault.ErrNotFound
		}
		found = copySurvey(survey)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// Lock is Get: a caller inside InTx already holds the store exclusively.
func (r *surveyStore) Lock(ctx context.Context, surveyID int64) (*models.Survey, error) {
	return r.Get(ctx, surveyID)
}

func (r *surveyStore) LockShared(ctx context.Context, surveyID int64) (*models.Survey, error) {
	return r.Get(ctx, surveyID)
}

func (r *surveyStore) SetLatestPublished(ctx context.Context, surveyID int64, versionID *int64) error {
	return r.s.update(ctx, func(st *state) error {
		survey, ok := st.surveys[surveyID]
		if !ok {
			return fault.ErrNotFound
		}
		if versionID != nil {
			if _, ok := st.versions[*versionID]; !ok {
				return foreignKeyViolation("surveys_latest_published_version_id_fkey")
			}
			id := *versionID
			survey.LatestPublishedVersionID = &id
		} else {
			survey.LatestPublishedVersionID = nil
		}
		st.surveys[surveyID] = survey
		return nil
	})
}

func (r *surveyStore) List(ctx context.Context) ([]models.Survey, error) {
	var out []models.Survey

	err := r.s.view(ctx, func(st *state) error {
		out = make([]models.Survey, 0, len(st.surveys))
		for _, survey := range st.surveys {
			out = append(out, copySurvey(survey))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *surveyStore) SoftDelete(ctx context.Context, id int64) error {
	return r.s.update(ctx, func(st *state) error {
		survey, ok := st.surveys[id]
		if !ok || survey.DeletedAt != nil {
			return fault.ErrNotFound
		}
		now := r.s.now().UTC()
		survey.DeletedAt = &now
		st.surveys[id] = survey
		return nil
	})
}

type sessionStore struct{ s *Store }

func (r *sessionStore) Create(ctx context.Context, session *models.SurveySession) (*models.SurveySession, error) {
	var created models.SurveySession

	err := r.s.update(ctx, func(st *state) error {
		if _, ok := st.sessions[session.ID]; ok {
			return uniqueViolation("survey_sessions_pkey")
		}
		if _, ok := st.versions[session.SurveyVersionID]; !ok {
			return foreignKeyViolation("survey_sessions_survey_version_id_fkey")
		}
		created = *session
		created.CreatedAt = r.s.now().UTC()
		st.sessions[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *sessionStore) Get(ctx context.Context, id string) (*models.SurveySession, error) {
	var found models.SurveySession

	err := r.s.view(ctx, func(st *state) error {
		session, ok := st.sessions[id]
		if !ok {
			return fault.ErrNotFound
		}
		found = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *sessionStore) CountByVersion(ctx context.Context, versionID int64) (int, error) {
	count := 0
	err := r.s.view(ctx, func(st *state) error {
		for _, session := range st.sessions {
			if session.SurveyVersionID == versionID {
				count++
			}
		}
		return nil
	})
	return count, err
}

type adminStore struct{ s *Store }

func (r *adminStore) Create(ctx context.Context, admin *models.Admin) (*models.Admin, error) {
	var created models.Admin

	err := r.s.update(ctx, func(st *state) error {
		for _, existing := range st.admins {
			if existing.TelegramUsername == admin.TelegramUsername {
				return uniqueViolation("admins_telegram_username_key")
			}
		}
		st.nextAdminID++
		created = *admin
		created.ID = st.nextAdminID
		created.CreatedAt = r.s.now().UTC()
		st.admins[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *adminStore) Get(ctx context.Context, id int64) (*models.Admin, error) {
	var found models.Admin

	err := r.s.view(ctx, func(st *state) error {
		admin, ok := st.admins[id]
		if !ok {
			return fault.ErrNotFound
		}
		found = admin
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}
