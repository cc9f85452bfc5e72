package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
)

const migrateLockID int64 = 51730210

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB selected by dsn and runs auto-migrations.
// "sqlite:<path>" and "file:<...>" DSNs use SQLite; anything else is handed to Postgres.
func NewGormStore(dsn string) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	dialector, isSQLite := openDialector(dsn)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if isSQLite {
		// in-memory databases live per connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		if err := migrate(db); err != nil {
			return nil, err
		}
		return &GormStore{db: db}, nil
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func openDialector(dsn string) (gorm.Dialector, bool) {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), true
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn), true
	default:
		return postgres.Open(dsn), false
	}
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(&UserModel{}, &SubmissionModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a new identity.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// AssignRole sets the role of one user.
func (s *GormStore) AssignRole(userID string, role domain.Role) error {
	res := s.db.Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"role":       string(role),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSubmission inserts a submission row.
func (s *GormStore) CreateSubmission(sub domain.Submission) error {
	model := submissionToModel(sub)
	return s.db.Create(&model).Error
}

// GetSubmission retrieves a submission by ID.
func (s *GormStore) GetSubmission(id string) (domain.Submission, bool, error) {
	var models []SubmissionModel
	if err := s.db.Where("id = ?", id).Limit(2).Find(&models).Error; err != nil {
		return domain.Submission{}, false, err
	}
	switch len(models) {
	case 0:
		return domain.Submission{}, false, nil
	case 1:
		return submissionFromModel(models[0]), true, nil
	default:
		return domain.Submission{}, false, fmt.Errorf("submission %s: multiple rows", id)
	}
}

// ListSubmissionsByOwner returns submissions created by ownerID.
func (s *GormStore) ListSubmissionsByOwner(ownerID string) ([]domain.Submission, error) {
	return s.listSubmissions("user_id = ?", ownerID)
}

// ListSubmissionsByStatus returns submissions in status, oldest first.
func (s *GormStore) ListSubmissionsByStatus(status domain.SubmissionStatus) ([]domain.Submission, error) {
	return s.listSubmissions("status = ?", string(status))
}

func (s *GormStore) listSubmissions(conds ...any) ([]domain.Submission, error) {
	var models []SubmissionModel
	tx := s.db.Order("created_at ASC").Order("id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Submission, 0, len(models))
	for _, m := range models {
		res = append(res, submissionFromModel(m))
	}
	return res, nil
}

// DecideSubmission moves a pending submission to its terminal status.
func (s *GormStore) DecideSubmission(id string, d domain.Decision) error {
	if !domain.CanTransition(domain.StatusPending, d.Outcome) {
		return fmt.Errorf("invalid outcome %q", d.Outcome)
	}
	decidedAt := d.DecidedAt.UTC()
	res := s.db.Model(&SubmissionModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(map[string]any{
			"status":            string(d.Outcome),
			"reviewer_feedback": d.Feedback,
			"reviewed_by":       d.ReviewerID,
			"reviewed_at":       decidedAt,
			"updated_at":        decidedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	_, ok, err := s.GetSubmission(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrNotPending
}
