package domain

import "time"

// Clock supplies the wall-clock time used for round window checks
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Authorizer decides whether a caller holds the administrative identity
type Authorizer interface {
	IsAdmin(caller Account) bool
}

// SingleAdmin authorizes exactly one account
type SingleAdmin struct {
	Admin Account
}

// IsAdmin reports whether caller is the configured administrator
func (a SingleAdmin) IsAdmin(caller Account) bool {
	return !a.Admin.IsZero() && caller == a.Admin
}
