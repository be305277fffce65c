// Package arfs models drive, folder and file entities and maps them to and
// from tagged, optionally encrypted ledger payloads.
package arfs

// EntityType names an entity variant, as carried in the Entity-Type tag.
type EntityType string

const (
	DriveEntity  EntityType = "drive"
	FolderEntity EntityType = "folder"
	FileEntity   EntityType = "file"
)

// Privacy is an entity's encryption mode.
type Privacy string

const (
	Public  Privacy = "public"
	Private Privacy = "private"
)

// Version is the ArFS schema version this package produces.
const Version = "0.11"

// AuthModePassword is the only supported Drive-Auth-Mode.
const AuthModePassword = "password"

// InvalidPasswordName replaces the name of entities that could not be decrypted.
const InvalidPasswordName = "Invalid Drive Password"

// Metadata holds the attributes shared by every entity version.
type Metadata struct {
	EntityID       string
	DriveID        string // owning drive; empty on the Drive entity itself
	ParentFolderID string // empty for a drive's root folder
	Name           string
	UnixTime       int64
	Privacy        Privacy

	// Provenance.
	AppName     string
	AppVersion  string
	ArFS        string
	ContentType string

	// Set for private entities only.
	Cipher   string
	CipherIV string

	// Populated from the ledger on read.
	TxID        string
	Owner       string
	BlockHeight int64
	BundledIn   string

	// Invalid marks a version whose payload failed to decrypt.
	Invalid bool
}

// Entity is one of *Drive, *Folder or *File.
type Entity interface {
	Meta() *Metadata
	Kind() EntityType
	entity()
}

// Drive is a named container with a root folder.
type Drive struct {
	Metadata
	RootFolderID  string
	DriveAuthMode string
}

// Folder is a directory within a drive.
type Folder struct {
	Metadata
}

// File is a file's metadata. Its content lives in the separate DataTxID transaction.
type File struct {
	Metadata
	Size             int64
	LastModifiedDate int64 // milliseconds since the epoch
	DataTxID         string
	DataContentType  string
}

func (d *Drive) Meta() *Metadata  { return &d.Metadata }
func (f *Folder) Meta() *Metadata { return &f.Metadata }
func (f *File) Meta() *Metadata   { return &f.Metadata }

func (*Drive) Kind() EntityType  { return DriveEntity }
func (*Folder) Kind() EntityType { return FolderEntity }
func (*File) Kind() EntityType   { return FileEntity }

func (*Drive) entity()  {}
func (*Folder) entity() {}
func (*File) entity()   {}

// IsRoot reports whether a folder is its drive's root folder.
func (f *Folder) IsRoot() bool { return f.ParentFolderID == "" }

// DriveIDOf returns the drive an entity belongs to. For a drive, its own ID.
func DriveIDOf(e Entity) string {
	if e.Kind() == DriveEntity {
		return e.Meta().EntityID
	}
	return e.Meta().DriveID
}

// newEntity allocates an empty variant for kind.
func newEntity(kind EntityType) (Entity, bool) {
	switch kind {
	case DriveEntity:
		return &Drive{}, true
	case FolderEntity:
		return &Folder{}, true
	case FileEntity:
		return &File{}, true
	default:
		return nil, false
	}
}
