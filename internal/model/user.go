package model

// User identifies a tenant of the pipeline. Authentication happens
// upstream; by the time a request reaches the pipeline the user is
// resolved to an id and a subscription tier.
type User struct {
	ID   string `json:"id"`
	Tier string `json:"tier"`
}
