package domain

import "time"

// Quota is a server's request allowance for the current window.
type Quota struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Server is one GitHub (or GitHub Enterprise) endpoint the user is signed into.
type Server struct {
	Label      string
	APIURL     string
	GraphQLURL string
	UserLogin  string
	GoodToGo   bool
	Quota      Quota

	LastSyncFailed bool
}

// Repo is a repository whose items are tracked.
type Repo struct {
	Server  string
	Owner   string
	Name    string
	Enabled bool
}

// FullName is the owner/name form used in listings and filters.
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}
