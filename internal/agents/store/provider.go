package store

import "github.com/jmoiron/sqlx"

// Provide creates the agent store using the shared database connection.
func Provide(db *sqlx.DB) (*SQLRepository, func() error, error) {
	repo, err := NewSQLRepositoryWithDB(db)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
