// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wmde/mismatch-finder/internal/conf"
	"github.com/wmde/mismatch-finder/internal/errors"
	"github.com/wmde/mismatch-finder/internal/observability/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface abstracts the underlying database implementation and defines
// the operations the rest of the service performs against it.
type Interface interface {
	Open() error
	Close() error
	// mismatch read path
	GetMismatchesForItems(ctx context.Context, itemIDs []string, includeReviewed, includeExpired bool) ([]Mismatch, error)
	GetMismatch(ctx context.Context, id uint) (Mismatch, error)
	// mismatch write path
	UpdateReviewStatus(ctx context.Context, id uint, reviewerID uint, newStatus ReviewStatus) (Mismatch, error)
	// audit log
	SaveAudit(ctx context.Context, entry *MismatchAudit) error
	GetAuditForMismatch(ctx context.Context, mismatchID uint) ([]MismatchAudit, error)
	// users
	GetUserByMwID(ctx context.Context, mwUserID uint) (User, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB
	metrics *metrics.DatastoreMetrics
}

// New creates a new datastore instance based on the provided settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// SetMetrics attaches datastore metrics. Safe to leave unset; recording is
// skipped when nil.
func (ds *DataStore) SetMetrics(m *metrics.DatastoreMetrics) {
	ds.metrics = m
}

func (ds *DataStore) recordOperation(op string, start time.Time, err error) {
	if ds.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	ds.metrics.RecordOperation(op, status)
	ds.metrics.RecordOperationDuration(op, time.Since(start))
}

// GetMismatchesForItems returns the mismatches whose item id is in itemIDs.
// Unless includeReviewed is set, only pending mismatches are returned, and
// unless includeExpired is set, mismatches whose import has expired are
// filtered out. Expiry is evaluated at query time against the joined
// import_meta row. Result order is storage order.
func (ds *DataStore) GetMismatchesForItems(ctx context.Context, itemIDs []string, includeReviewed, includeExpired bool) ([]Mismatch, error) {
	start := time.Now()

	query := ds.DB.WithContext(ctx).
		Preload("ImportMeta").
		Preload("ImportMeta.User").
		Preload("Reviewer").
		Where("mismatches.item_id IN ?", itemIDs)

	if !includeReviewed {
		query = query.Where("mismatches.review_status = ?", StatusPending)
	}

	if !includeExpired {
		query = query.
			Joins("JOIN import_meta ON import_meta.id = mismatches.import_id").
			Where("import_meta.expires >= ?", time.Now())
	}

	var mismatches []Mismatch
	err := query.Find(&mismatches).Error
	ds.recordOperation("get_mismatches_for_items", start, err)
	if err != nil {
		return nil, errors.New(fmt.Errorf("getting mismatches: %w", err)).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Context("item_count", len(itemIDs)).
			Build()
	}

	return mismatches, nil
}

// GetMismatch retrieves a mismatch by its ID, including import metadata.
func (ds *DataStore) GetMismatch(ctx context.Context, id uint) (Mismatch, error) {
	start := time.Now()

	var mismatch Mismatch
	err := ds.DB.WithContext(ctx).
		Preload("ImportMeta").
		Preload("ImportMeta.User").
		Preload("Reviewer").
		First(&mismatch, id).Error
	ds.recordOperation("get_mismatch", start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Mismatch{}, errors.Newf("mismatch %d not found", id).
				Category(errors.CategoryNotFound).
				Component("datastore").
				Context("mismatch_id", id).
				Build()
		}
		return Mismatch{}, errors.New(fmt.Errorf("getting mismatch %d: %w", id, err)).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}

	return mismatch, nil
}

// UpdateReviewStatus transitions a mismatch out of the pending state in a
// single guarded update. A mismatch that is no longer pending yields a
// conflict error; review is a one-way transition. Returns the updated row.
func (ds *DataStore) UpdateReviewStatus(ctx context.Context, id uint, reviewerID uint, newStatus ReviewStatus) (Mismatch, error) {
	start := time.Now()

	var updated Mismatch
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Mismatch{}).
			Where("id = ? AND review_status = ?", id, StatusPending).
			Updates(map[string]any{
				"review_status": newStatus,
				"reviewer_id":   reviewerID,
			})
		if result.Error != nil {
			return fmt.Errorf("updating review status: %w", result.Error)
		}

		if result.RowsAffected == 0 {
			// Either the row is gone or it was already reviewed;
			// fetch to tell the two apart.
			var current Mismatch
			if err := tx.First(&current, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.Newf("mismatch %d not found", id).
						Category(errors.CategoryNotFound).
						Component("datastore").
						Context("mismatch_id", id).
						Build()
				}
				return fmt.Errorf("checking mismatch %d: %w", id, err)
			}
			return errors.Newf("mismatch %d is not pending (current status: %s)", id, current.ReviewStatus).
				Category(errors.CategoryConflict).
				Component("datastore").
				Context("mismatch_id", id).
				Context("current_status", string(current.ReviewStatus)).
				Build()
		}

		return tx.Preload("ImportMeta").
			Preload("ImportMeta.User").
			Preload("Reviewer").
			First(&updated, id).Error
	})
	ds.recordOperation("update_review_status", start, err)
	if err != nil {
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			return Mismatch{}, err
		}
		return Mismatch{}, errors.New(err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Context("mismatch_id", id).
			Build()
	}

	return updated, nil
}

// SaveAudit appends a review audit entry. Audit rows are write-once.
func (ds *DataStore) SaveAudit(ctx context.Context, entry *MismatchAudit) error {
	start := time.Now()

	err := ds.DB.WithContext(ctx).Create(entry).Error
	ds.recordOperation("save_audit", start, err)
	if err != nil {
		return errors.New(fmt.Errorf("saving audit entry: %w", err)).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Context("mismatch_id", entry.MismatchID).
			Build()
	}
	return nil
}

// GetAuditForMismatch returns the audit trail of a mismatch, oldest first.
func (ds *DataStore) GetAuditForMismatch(ctx context.Context, mismatchID uint) ([]MismatchAudit, error) {
	start := time.Now()

	var entries []MismatchAudit
	err := ds.DB.WithContext(ctx).
		Where("mismatch_id = ?", mismatchID).
		Order("id ASC").
		Find(&entries).Error
	ds.recordOperation("get_audit_for_mismatch", start, err)
	if err != nil {
		return nil, errors.New(fmt.Errorf("getting audit entries: %w", err)).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Context("mismatch_id", mismatchID).
			Build()
	}
	return entries, nil
}

// GetUserByMwID retrieves a user by their MediaWiki user id.
func (ds *DataStore) GetUserByMwID(ctx context.Context, mwUserID uint) (User, error) {
	start := time.Now()

	var user User
	err := ds.DB.WithContext(ctx).Where("mw_user_id = ?", mwUserID).First(&user).Error
	ds.recordOperation("get_user_by_mw_id", start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, errors.Newf("user with MediaWiki id %d not found", mwUserID).
				Category(errors.CategoryNotFound).
				Component("datastore").
				Build()
		}
		return User{}, errors.New(fmt.Errorf("getting user: %w", err)).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return user, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&User{}, &ImportMeta{}, &Mismatch{}, &MismatchAudit{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
