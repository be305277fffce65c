package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements ardrive.Database on SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path (or ":memory:") and applies
// pending migrations.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens a SQLite connection configured for the engine.
// A single connection is used: SQLite serializes writers anyway, and an
// in-memory database exists only within one connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Sync records

const recordColumns = `id, login, app_name, app_version, unix_time, content_type, entity_type,
	drive_id, parent_folder_id, entity_id, file_size, file_name, file_hash, file_path,
	file_version, cipher, data_cipher_iv, metadata_cipher_iv, last_modified_date, is_local,
	is_public, metadata_tx_id, data_tx_id, data_content_type, metadata_sync_status,
	data_sync_status, cloud_only, bundle_tx_id, upload_time, block_height, status_reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*ardrive.SyncRecord, error) {
	var r ardrive.SyncRecord
	err := row.Scan(&r.ID, &r.Login, &r.AppName, &r.AppVersion, &r.UnixTime, &r.ContentType,
		&r.EntityType, &r.DriveID, &r.ParentFolderID, &r.EntityID, &r.FileSize, &r.FileName,
		&r.FileHash, &r.FilePath, &r.FileVersion, &r.Cipher, &r.DataCipherIV, &r.MetadataCipherIV,
		&r.LastModifiedDate, &r.IsLocal, &r.IsPublic, &r.MetadataTxID, &r.DataTxID,
		&r.DataContentType, &r.MetadataSyncStatus, &r.DataSyncStatus, &r.CloudOnly,
		&r.BundleTxID, &r.UploadTime, &r.BlockHeight, &r.StatusReason)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// recordValues returns every column value except id, in recordColumns order.
func recordValues(r *ardrive.SyncRecord) []any {
	return []any{r.Login, r.AppName, r.AppVersion, r.UnixTime, r.ContentType,
		r.EntityType, r.DriveID, r.ParentFolderID, r.EntityID, r.FileSize, r.FileName,
		r.FileHash, r.FilePath, r.FileVersion, r.Cipher, r.DataCipherIV, r.MetadataCipherIV,
		r.LastModifiedDate, r.IsLocal, r.IsPublic, r.MetadataTxID, r.DataTxID,
		r.DataContentType, r.MetadataSyncStatus, r.DataSyncStatus, r.CloudOnly,
		r.BundleTxID, r.UploadTime, r.BlockHeight, r.StatusReason}
}

func (s *SQLiteDatabase) GetRecord(id int64) (*ardrive.SyncRecord, error) {
	rec, err := scanRecord(s.db.QueryRow("SELECT "+recordColumns+" FROM sync_records WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %d: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteDatabase) PutRecord(rec *ardrive.SyncRecord) error {
	cols := strings.Split(recordColumns, ",")[1:]
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}

	if rec.ID == 0 {
		query := fmt.Sprintf("INSERT INTO sync_records (%s) VALUES (%s)",
			strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
		res, err := s.db.Exec(query, recordValues(rec)...)
		if err != nil {
			return fmt.Errorf("inserting record for %s: %w", rec.EntityID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading record id: %w", err)
		}
		rec.ID = id
		return nil
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	args := append(recordValues(rec), rec.ID)
	res, err := s.db.Exec("UPDATE sync_records SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating record %d: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating record %d: %w", rec.ID, ardrive.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) QueryRecords(q ardrive.RecordQuery) ([]*ardrive.SyncRecord, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}

	if q.DriveID != "" {
		add("drive_id = ?", q.DriveID)
	}
	if q.EntityID != "" {
		add("entity_id = ?", q.EntityID)
	}
	if q.EntityType != "" {
		add("entity_type = ?", q.EntityType)
	}
	if q.FilePath != "" {
		add("file_path = ?", q.FilePath)
	}
	if q.FileName != "" {
		add("file_name = ?", q.FileName)
	}
	if q.FileHash != "" {
		add("file_hash = ?", q.FileHash)
	}
	if q.PathPrefix != "" {
		add("substr(file_path, 1, length(?)) = ?", q.PathPrefix)
		args = append(args, q.PathPrefix)
	}
	if q.MetadataTxID != "" {
		add("metadata_tx_id = ?", q.MetadataTxID)
	}
	if q.IsLocal != nil {
		add("is_local = ?", *q.IsLocal)
	}
	if q.CloudOnly != nil {
		add("cloud_only = ?", *q.CloudOnly)
	}
	if q.MetadataStatus != nil {
		add("metadata_sync_status = ?", *q.MetadataStatus)
	}
	if q.DataStatus != nil {
		add("data_sync_status = ?", *q.DataStatus)
	}
	if q.MissingPath {
		where = append(where, "file_path = ''")
	}

	query := "SELECT " + recordColumns + " FROM sync_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch q.OrderBy {
	case ardrive.OrderByVersionDesc:
		query += " ORDER BY file_version DESC, unix_time DESC, id DESC"
	case ardrive.OrderByUnixTimeDesc:
		query += " ORDER BY unix_time DESC, id DESC"
	case ardrive.OrderByUnixTimeAsc:
		query += " ORDER BY unix_time ASC, id ASC"
	default:
		query += " ORDER BY id"
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []*ardrive.SyncRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

// Drives

const driveColumns = `drive_id, login, name, root_folder_id, privacy, drive_auth_mode, cipher,
	cipher_iv, metadata_tx_id, unix_time, last_block_height, sync_status`

func scanDrive(row scanner) (*ardrive.Drive, error) {
	var d ardrive.Drive
	err := row.Scan(&d.DriveID, &d.Login, &d.Name, &d.RootFolderID, &d.Privacy, &d.DriveAuthMode,
		&d.Cipher, &d.CipherIV, &d.MetadataTxID, &d.UnixTime, &d.LastBlockHeight, &d.SyncStatus)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteDatabase) GetDrive(driveID string) (*ardrive.Drive, error) {
	d, err := scanDrive(s.db.QueryRow("SELECT "+driveColumns+" FROM drives WHERE drive_id = ?", driveID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting drive %s: %w", driveID, err)
	}
	return d, nil
}

// PutDrive upserts a drive. The stored sync cursor never moves backwards.
func (s *SQLiteDatabase) PutDrive(d *ardrive.Drive) error {
	privacy := d.Privacy
	if privacy == "" {
		privacy = "public"
	}
	_, err := s.db.Exec(`INSERT INTO drives (`+driveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (drive_id) DO UPDATE SET
			login = excluded.login,
			name = excluded.name,
			root_folder_id = excluded.root_folder_id,
			privacy = excluded.privacy,
			drive_auth_mode = excluded.drive_auth_mode,
			cipher = excluded.cipher,
			cipher_iv = excluded.cipher_iv,
			metadata_tx_id = excluded.metadata_tx_id,
			unix_time = excluded.unix_time,
			last_block_height = max(drives.last_block_height, excluded.last_block_height),
			sync_status = excluded.sync_status`,
		d.DriveID, d.Login, d.Name, d.RootFolderID, privacy, d.DriveAuthMode, d.Cipher,
		d.CipherIV, d.MetadataTxID, d.UnixTime, d.LastBlockHeight, d.SyncStatus)
	if err != nil {
		return fmt.Errorf("saving drive %s: %w", d.DriveID, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListDrives(login string) ([]*ardrive.Drive, error) {
	rows, err := s.db.Query("SELECT "+driveColumns+" FROM drives WHERE login = ? ORDER BY unix_time, drive_id", login)
	if err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	defer rows.Close()

	var out []*ardrive.Drive
	for rows.Next() {
		d, err := scanDrive(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning drive: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDriveLastBlockHeight raises a drive's sync cursor. Lower heights are ignored.
func (s *SQLiteDatabase) UpdateDriveLastBlockHeight(driveID string, height int64) error {
	res, err := s.db.Exec(
		"UPDATE drives SET last_block_height = max(last_block_height, ?) WHERE drive_id = ?",
		height, driveID)
	if err != nil {
		return fmt.Errorf("updating block height of drive %s: %w", driveID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating block height of drive %s: %w", driveID, ardrive.ErrNotFound)
	}
	return nil
}

// Profiles

func (s *SQLiteDatabase) GetProfile(login string) (*ardrive.Profile, error) {
	var p ardrive.Profile
	err := s.db.QueryRow(
		"SELECT login, sync_folder_path, last_block_height FROM profiles WHERE login = ?", login,
	).Scan(&p.Login, &p.SyncFolderPath, &p.LastBlockHeight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile %s: %w", login, err)
	}
	return &p, nil
}

func (s *SQLiteDatabase) PutProfile(p *ardrive.Profile) error {
	_, err := s.db.Exec(`INSERT INTO profiles (login, sync_folder_path, last_block_height)
		VALUES (?, ?, ?)
		ON CONFLICT (login) DO UPDATE SET
			sync_folder_path = excluded.sync_folder_path,
			last_block_height = excluded.last_block_height`,
		p.Login, p.SyncFolderPath, p.LastBlockHeight)
	if err != nil {
		return fmt.Errorf("saving profile %s: %w", p.Login, err)
	}
	return nil
}

// Bundles

func (s *SQLiteDatabase) PutBundle(b *ardrive.Bundle) error {
	_, err := s.db.Exec(`INSERT INTO bundles (bundle_tx_id, login, item_count, sync_status, upload_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (bundle_tx_id) DO UPDATE SET
			login = excluded.login,
			item_count = excluded.item_count,
			sync_status = excluded.sync_status,
			upload_time = excluded.upload_time`,
		b.BundleTxID, b.Login, b.ItemCount, b.SyncStatus, b.UploadTime)
	if err != nil {
		return fmt.Errorf("saving bundle %s: %w", b.BundleTxID, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListBundlesByStatus(status ardrive.SyncStatus) ([]*ardrive.Bundle, error) {
	rows, err := s.db.Query(`SELECT bundle_tx_id, login, item_count, sync_status, upload_time
		FROM bundles WHERE sync_status = ? ORDER BY upload_time, bundle_tx_id`, status)
	if err != nil {
		return nil, fmt.Errorf("listing bundles: %w", err)
	}
	defer rows.Close()

	var out []*ardrive.Bundle
	for rows.Next() {
		var b ardrive.Bundle
		if err := rows.Scan(&b.BundleTxID, &b.Login, &b.ItemCount, &b.SyncStatus, &b.UploadTime); err != nil {
			return nil, fmt.Errorf("scanning bundle: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// Uploader state

func (s *SQLiteDatabase) PutUploadState(st *ardrive.UploadState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO upload_states (tx_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (tx_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		st.TxID, st.State, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving upload state of %s: %w", st.TxID, err)
	}
	return nil
}

func (s *SQLiteDatabase) GetUploadState(txID string) (*ardrive.UploadState, error) {
	var st ardrive.UploadState
	err := s.db.QueryRow("SELECT tx_id, state, updated_at FROM upload_states WHERE tx_id = ?", txID).
		Scan(&st.TxID, &st.State, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting upload state of %s: %w", txID, err)
	}
	return &st, nil
}

func (s *SQLiteDatabase) ListUploadStates() ([]*ardrive.UploadState, error) {
	rows, err := s.db.Query("SELECT tx_id, state, updated_at FROM upload_states ORDER BY updated_at, tx_id")
	if err != nil {
		return nil, fmt.Errorf("listing upload states: %w", err)
	}
	defer rows.Close()

	var out []*ardrive.UploadState
	for rows.Next() {
		var st ardrive.UploadState
		if err := rows.Scan(&st.TxID, &st.State, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning upload state: %w", err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) DeleteUploadState(txID string) error {
	if _, err := s.db.Exec("DELETE FROM upload_states WHERE tx_id = ?", txID); err != nil {
		return fmt.Errorf("deleting upload state of %s: %w", txID, err)
	}
	return nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateSyncOperation(operation, parameters string) (*ardrive.SyncOperation, error) {
	op := &ardrive.SyncOperation{
		StartedAt:  time.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.Exec(
		"INSERT INTO sync_operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)",
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating sync operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading sync operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishSyncOperation(id int64, status string) error {
	_, err := s.db.Exec("UPDATE sync_operations SET finished_at = ?, status = ? WHERE id = ?",
		time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing sync operation %d: %w", id, err)
	}
	return nil
}

// ListSyncOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListSyncOperations(limit int) ([]*ardrive.SyncOperation, error) {
	rows, err := s.db.Query(`SELECT id, started_at, finished_at, operation, parameters, status
		FROM sync_operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	defer rows.Close()

	var out []*ardrive.SyncOperation
	for rows.Next() {
		var op ardrive.SyncOperation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning sync operation: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = &finished.Time
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) MaxSyncOperationID() (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(id) FROM sync_operations").Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max sync operation id: %w", err)
	}
	return id.Int64, nil
}

// Path returns the database file path, or "" for wrapped connections.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the database to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ ardrive.Database = (*SQLiteDatabase)(nil)
