package engine

import (
	"encoding/base64"
	"fmt"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/keys"
)

// ShareFileLink returns the web app link to a file. Links to private files
// carry the file key, so anyone holding the link can read that one file.
func (s *Service) ShareFileLink(fileID string) (string, error) {
	recs, err := s.db.QueryRecords(ardrive.RecordQuery{
		EntityID:   fileID,
		EntityType: "file",
		OrderBy:    ardrive.OrderByVersionDesc,
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("loading file %s: %w", fileID, err)
	}
	if len(recs) == 0 {
		return "", fmt.Errorf("file %s: %w", fileID, ardrive.ErrNotFound)
	}
	link := fmt.Sprintf("%s/#/file/%s/view", s.cfg.AppURL, fileID)

	d, err := s.drive(recs[0].DriveID)
	if err != nil {
		return "", err
	}
	dk, err := s.driveKey(d)
	if err != nil {
		return "", err
	}
	if dk == nil {
		return link, nil
	}
	fk, err := keys.DeriveFileKey(dk, fileID)
	if err != nil {
		return "", err
	}
	return link + "?fileKey=" + base64.StdEncoding.EncodeToString(fk.Bytes()), nil
}

// ShareDriveLink returns the web app link to a drive.
func (s *Service) ShareDriveLink(driveID string) (string, error) {
	d, err := s.drive(driveID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/#/drives/%s", s.cfg.AppURL, d.DriveID), nil
}
