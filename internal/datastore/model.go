// model.go this code defines the data model for the application
package datastore

import "time"

// ReviewStatus is the curation state of a mismatch. Stored as a plain
// string so future states can be added without a schema change; the
// review workflow owns the allowed transition set.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusAccepted ReviewStatus = "accepted"
	StatusRejected ReviewStatus = "rejected"
)

// MismatchTypeStatement and MismatchTypeQualifier classify which part of a
// statement the reported mismatch is about.
const (
	MismatchTypeStatement = "statement"
	MismatchTypeQualifier = "qualifier"
)

// Mismatch represents a single crowd-reported discrepancy between a
// Wikidata value and an external dataset value.
type Mismatch struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	ItemID            string       `gorm:"index:idx_mismatches_item_id;not null" json:"item_id"`
	StatementGUID     string       `json:"statement_guid"`
	PropertyID        string       `gorm:"index:idx_mismatches_property_id;not null" json:"property_id"`
	WikidataValue     string       `json:"wikidata_value"`
	MetaWikidataValue string       `json:"meta_wikidata_value"`
	ExternalValue     string       `json:"external_value"`
	ExternalURL       string       `json:"external_url"`
	Type              string       `gorm:"type:varchar(20);default:statement" json:"type"`
	ReviewStatus      ReviewStatus `gorm:"type:varchar(20);index:idx_mismatches_review_status;default:pending" json:"review_status"`
	ReviewerID        *uint        `json:"-"`
	Reviewer          *User        `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	ImportID          uint         `gorm:"index;not null" json:"-"`
	ImportMeta        ImportMeta   `gorm:"foreignKey:ImportID" json:"import_meta"`
	CreatedAt         time.Time    `json:"-"`
	UpdatedAt         time.Time    `json:"-"`
}

func (Mismatch) TableName() string {
	return "mismatches"
}

// ImportMeta holds provenance and expiry information for a batch of
// imported mismatches. Rows are created by the import process and only
// ever read here.
type ImportMeta struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	Status            string    `gorm:"type:varchar(20);default:completed" json:"status"`
	Description       string    `json:"description"`
	UserID            uint      `json:"-"`
	User              User      `gorm:"foreignKey:UserID" json:"user"`
	ExternalSource    string    `json:"external_source"`
	ExternalSourceURL string    `json:"external_source_url"`
	Expires           time.Time `gorm:"index:idx_import_meta_expires;not null" json:"expires"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"-"`
}

func (ImportMeta) TableName() string {
	return "import_meta"
}

// User is a MediaWiki account known to the service, either as importer or
// as reviewer.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	MwUserID  uint      `gorm:"uniqueIndex;not null" json:"mw_userid"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// MismatchAudit is an append-only record of a review status transition.
// Entries are written exactly once per successful transition and never
// updated or deleted.
type MismatchAudit struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	MismatchID uint         `gorm:"index:idx_mismatch_audits_mismatch_id;not null" json:"mismatch_id"`
	BatchID    string       `gorm:"type:varchar(36);index" json:"batch_id"`
	OldStatus  ReviewStatus `gorm:"type:varchar(20);not null" json:"old_status"`
	NewStatus  ReviewStatus `gorm:"type:varchar(20);not null" json:"new_status"`
	Username   string       `gorm:"not null" json:"username"`
	MwUserID   uint         `json:"mw_userid"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Expired reports whether the import this mismatch arrived with has
// passed its review deadline. Expiry is a property of the import, not of
// the mismatch, and is evaluated against the given instant.
func (m *Mismatch) Expired(now time.Time) bool {
	return m.ImportMeta.Expires.Before(now)
}
