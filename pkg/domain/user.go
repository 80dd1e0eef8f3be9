package domain

// User is an owner of runs, carrying the aggregate disk-quota counter.
type User struct {
	Id    string
	Email string

	// Bytes recorded across all of the user's run workspaces.
	DiskUsage int64
}
