package ardrive

// Database is the local mirror store. A put must be visible to the next get;
// atomicity is only required for single-record upserts.
type Database interface {
	// Sync records

	// GetRecord returns the record with the given row ID, or nil if absent.
	GetRecord(id int64) (*SyncRecord, error)

	// PutRecord inserts the record when rec.ID is zero, assigning rec.ID,
	// and replaces the stored row otherwise.
	PutRecord(rec *SyncRecord) error

	// QueryRecords returns every record matching all set predicates of q.
	QueryRecords(q RecordQuery) ([]*SyncRecord, error)

	// Drives

	GetDrive(driveID string) (*Drive, error)
	PutDrive(drive *Drive) error
	ListDrives(login string) ([]*Drive, error)
	UpdateDriveLastBlockHeight(driveID string, height int64) error

	// Profiles

	GetProfile(login string) (*Profile, error)
	PutProfile(profile *Profile) error

	// Bundles

	PutBundle(bundle *Bundle) error
	ListBundlesByStatus(status SyncStatus) ([]*Bundle, error)

	// Uploader state

	PutUploadState(state *UploadState) error
	GetUploadState(txID string) (*UploadState, error)
	ListUploadStates() ([]*UploadState, error)
	DeleteUploadState(txID string) error

	// Operation tracking

	CreateSyncOperation(operation, parameters string) (*SyncOperation, error)
	FinishSyncOperation(id int64, status string) error
	ListSyncOperations(limit int) ([]*SyncOperation, error)
	MaxSyncOperationID() (int64, error)

	// CheckMigrations verifies that the schema is up to date.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	// Close closes the database connection.
	Close() error
}
