package auth

// Roles.
const (
	RoleAdmin    = "ADMIN"
	RoleUploader = "UPLOADER"
	RoleViewer   = "viewer"
)

// Scopes checked by the HTTP layer.
const (
	ScopeUploadVideo = "UPLOAD_VIDEO"
	ScopeDeleteVideo = "DELETE_VIDEO"
	ScopeListVideos  = "LIST_VIDEOS"
	ScopeAdmin       = "ADMIN"
)

var roleScopes = map[string][]string{
	RoleAdmin:    {ScopeAdmin, ScopeUploadVideo, ScopeDeleteVideo, ScopeListVideos},
	RoleUploader: {ScopeUploadVideo, ScopeDeleteVideo, ScopeListVideos},
	RoleViewer:   {ScopeListVideos},
}

// KnownRole reports whether role has a scope set.
func KnownRole(role string) bool {
	_, ok := roleScopes[role]
	return ok
}

// HasScope reports whether role grants scope. Unknown roles grant nothing.
func HasScope(role, scope string) bool {
	for _, s := range roleScopes[role] {
		if s == scope {
			return true
		}
	}
	return false
}
