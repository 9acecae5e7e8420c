package database

type RepositoryOptions struct {
	// Deleted hides soft deleted documents (a non null "deleted" date) from
	// every query.
	Deleted bool
}
