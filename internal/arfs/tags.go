package arfs

import (
	"fmt"
	"strconv"
)

// Tag names, exactly as they appear on the ledger.
const (
	TagAppName        = "App-Name"
	TagAppVersion     = "App-Version"
	TagUnixTime       = "Unix-Time"
	TagContentType    = "Content-Type"
	TagArFS           = "ArFS"
	TagEntityType     = "Entity-Type"
	TagDriveID        = "Drive-Id"
	TagFolderID       = "Folder-Id"
	TagFileID         = "File-Id"
	TagParentFolderID = "Parent-Folder-Id"
	TagDrivePrivacy   = "Drive-Privacy"
	TagDriveAuthMode  = "Drive-Auth-Mode"
	TagCipher         = "Cipher"
	TagCipherIV       = "Cipher-IV"
)

// Content types for metadata payloads.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/octet-stream"
)

type kindSet uint8

const (
	onDrive kindSet = 1 << iota
	onFolder
	onFile

	onAll = onDrive | onFolder | onFile
)

func kindBit(k EntityType) kindSet {
	switch k {
	case DriveEntity:
		return onDrive
	case FolderEntity:
		return onFolder
	case FileEntity:
		return onFile
	}
	return 0
}

// tagField maps one tag to entity fields. The table below is the only place
// tag names are bound to fields; encoding and decoding both walk it in order.
type tagField struct {
	name     string
	kinds    kindSet
	private  bool // emitted only for private entities
	required bool // decoding fails without it
	get      func(e Entity) string
	set      func(e Entity, v string) error
}

var tagTable = []tagField{
	{name: TagAppName, kinds: onAll,
		get: func(e Entity) string { return e.Meta().AppName },
		set: func(e Entity, v string) error { e.Meta().AppName = v; return nil }},
	{name: TagAppVersion, kinds: onAll,
		get: func(e Entity) string { return e.Meta().AppVersion },
		set: func(e Entity, v string) error { e.Meta().AppVersion = v; return nil }},
	{name: TagUnixTime, kinds: onAll, required: true,
		get: func(e Entity) string { return strconv.FormatInt(e.Meta().UnixTime, 10) },
		set: func(e Entity, v string) error {
			t, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("parsing %s %q: %w", TagUnixTime, v, err)
			}
			e.Meta().UnixTime = t
			return nil
		}},
	{name: TagContentType, kinds: onAll,
		get: func(e Entity) string { return e.Meta().ContentType },
		set: func(e Entity, v string) error { e.Meta().ContentType = v; return nil }},
	{name: TagArFS, kinds: onAll,
		get: func(e Entity) string { return e.Meta().ArFS },
		set: func(e Entity, v string) error { e.Meta().ArFS = v; return nil }},
	{name: TagEntityType, kinds: onAll, required: true,
		get: func(e Entity) string { return string(e.Kind()) },
		set: func(e Entity, v string) error {
			if EntityType(v) != e.Kind() {
				return fmt.Errorf("%s %q does not match %s", TagEntityType, v, e.Kind())
			}
			return nil
		}},
	{name: TagDriveID, kinds: onDrive, required: true,
		get: func(e Entity) string { return e.Meta().EntityID },
		set: func(e Entity, v string) error { e.Meta().EntityID = v; return nil }},
	{name: TagDriveID, kinds: onFolder | onFile, required: true,
		get: func(e Entity) string { return e.Meta().DriveID },
		set: func(e Entity, v string) error { e.Meta().DriveID = v; return nil }},
	{name: TagFolderID, kinds: onFolder, required: true,
		get: func(e Entity) string { return e.Meta().EntityID },
		set: func(e Entity, v string) error { e.Meta().EntityID = v; return nil }},
	{name: TagFileID, kinds: onFile, required: true,
		get: func(e Entity) string { return e.Meta().EntityID },
		set: func(e Entity, v string) error { e.Meta().EntityID = v; return nil }},
	// Absent on root folders: an empty value is never emitted.
	{name: TagParentFolderID, kinds: onFolder | onFile,
		get: func(e Entity) string { return e.Meta().ParentFolderID },
		set: func(e Entity, v string) error { e.Meta().ParentFolderID = v; return nil }},
	{name: TagDrivePrivacy, kinds: onDrive,
		get: func(e Entity) string { return string(e.Meta().Privacy) },
		set: func(e Entity, v string) error {
			switch Privacy(v) {
			case Public, Private:
				e.Meta().Privacy = Privacy(v)
				return nil
			}
			return fmt.Errorf("unknown %s %q", TagDrivePrivacy, v)
		}},
	{name: TagDriveAuthMode, kinds: onDrive, private: true,
		get: func(e Entity) string { return e.(*Drive).DriveAuthMode },
		set: func(e Entity, v string) error { e.(*Drive).DriveAuthMode = v; return nil }},
	{name: TagCipher, kinds: onAll, private: true,
		get: func(e Entity) string { return e.Meta().Cipher },
		set: func(e Entity, v string) error { e.Meta().Cipher = v; return nil }},
	{name: TagCipherIV, kinds: onAll, private: true,
		get: func(e Entity) string { return e.Meta().CipherIV },
		set: func(e Entity, v string) error { e.Meta().CipherIV = v; return nil }},
}

// idTagFor returns the tag carrying an entity variant's own ID.
func idTagFor(kind EntityType) string {
	switch kind {
	case DriveEntity:
		return TagDriveID
	case FolderEntity:
		return TagFolderID
	default:
		return TagFileID
	}
}

// IDTag returns the tag name holding the ID of entities of the given kind.
func IDTag(kind EntityType) string { return idTagFor(kind) }
