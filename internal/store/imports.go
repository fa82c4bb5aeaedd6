package store

import "database/sql"

// GetImportedFileHash returns the recorded content hash for an imported
// question file. Empty string means the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM imported_files WHERE path = $1`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the content hash of an imported question file
// so unchanged files are skipped on the next startup.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, sha256) VALUES ($1, $2)
		 ON CONFLICT (path) DO UPDATE SET sha256 = EXCLUDED.sha256`,
		path, hash,
	)
	return err
}
