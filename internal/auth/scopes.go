package auth

const (
	// ScopeRead allows listing tools and workflows.
	ScopeRead = "n8n:read"
	// ScopeWrite allows calling tools and changing workflows.
	ScopeWrite = "n8n:write"
)

// AllScopes lists every scope the bridge checks.
var AllScopes = []string{
	ScopeRead,
	ScopeWrite,
}
