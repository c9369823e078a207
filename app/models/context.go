package models

// Context keys carried by every request context.
type UserContext struct{}
type ClientContext struct{}
