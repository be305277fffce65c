package ardrive

import "time"

// SyncStatus tracks an entity version's progress towards the ledger.
// Metadata and data transactions carry independent statuses.
type SyncStatus int

const (
	Unsynced  SyncStatus = 0
	Queued    SyncStatus = 1
	Submitted SyncStatus = 2
	Confirmed SyncStatus = 3
)

func (s SyncStatus) String() string {
	switch s {
	case Unsynced:
		return "unsynced"
	case Queued:
		return "queued"
	case Submitted:
		return "submitted"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// LocalState records whether an entity version exists on disk.
type LocalState int

const (
	LocalAbsent   LocalState = 0
	LocalPresent  LocalState = 1
	LocalConflict LocalState = 2
)

// SyncRecord is one row of the local mirror: a single locally-known entity version.
// Records are superseded, never deleted: several records may share an EntityID,
// ordered by UnixTime.
type SyncRecord struct {
	ID                 int64
	Login              string
	AppName            string
	AppVersion         string
	UnixTime           int64
	ContentType        string
	EntityType         string // "drive", "folder" or "file"
	DriveID            string
	ParentFolderID     string // empty for a drive's root folder
	EntityID           string
	FileSize           int64
	FileName           string
	FileHash           string
	FilePath           string // empty until the parent chain resolves
	FileVersion        int64
	Cipher             string
	DataCipherIV       string
	MetadataCipherIV   string
	LastModifiedDate   int64
	IsLocal            LocalState
	IsPublic           bool
	MetadataTxID       string
	DataTxID           string
	DataContentType    string
	MetadataSyncStatus SyncStatus
	DataSyncStatus     SyncStatus
	CloudOnly          bool
	BundleTxID         string
	UploadTime         int64
	BlockHeight        int64
	StatusReason       string
}

// IsRoot reports whether the record describes a drive's root folder.
func (r *SyncRecord) IsRoot() bool {
	return r.EntityType == "folder" && r.ParentFolderID == ""
}

// Drive is a locally-known drive together with its sync cursor.
type Drive struct {
	DriveID         string
	Login           string
	Name            string
	RootFolderID    string
	Privacy         string // "public" or "private"
	DriveAuthMode   string
	Cipher          string
	CipherIV        string
	MetadataTxID    string
	UnixTime        int64
	LastBlockHeight int64
	SyncStatus      SyncStatus
}

// IsPrivate reports whether the drive's entities are encrypted.
func (d *Drive) IsPrivate() bool { return d.Privacy == "private" }

// Profile holds per-wallet settings.
type Profile struct {
	Login           string
	SyncFolderPath  string
	LastBlockHeight int64
}

// Bundle tracks an outer bundle transaction.
type Bundle struct {
	BundleTxID string
	Login      string
	ItemCount  int
	SyncStatus SyncStatus
	UploadTime int64
}

// UploadState is a persisted, serialized uploader snapshot.
type UploadState struct {
	TxID      string
	State     []byte
	UpdatedAt time.Time
}

// SyncOperation records one CLI operation that mutated the local store.
type SyncOperation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Operation  string
	Parameters string
	Status     string
}

// RecordOrder selects the ordering of QueryRecords results.
type RecordOrder int

const (
	OrderByID RecordOrder = iota
	OrderByVersionDesc
	OrderByUnixTimeDesc
	OrderByUnixTimeAsc
)

// RecordQuery is a conjunction of optional predicates over SyncRecords.
// Zero-valued fields are ignored.
type RecordQuery struct {
	DriveID        string
	EntityID       string
	EntityType     string
	FilePath       string
	FileName       string
	FileHash       string
	PathPrefix     string
	MetadataTxID   string
	IsLocal        *LocalState
	CloudOnly      *bool
	MetadataStatus *SyncStatus
	DataStatus     *SyncStatus
	MissingPath    bool
	OrderBy        RecordOrder
	Limit          int
}

// Ptr returns a pointer to v. Handy for optional RecordQuery fields.
func Ptr[T any](v T) *T { return &v }
