package auth

// Allow is the request-time authorization predicate for acting on a resource
// owned by ownerID. Ownership and the super flag both bypass the explicit
// permission check. It is pure: the permission set was embedded into the
// validated access token at issuance, so no storage round trip happens here.
func Allow(claims *Claims, ownerID string, code int) bool {
	if claims == nil {
		return false
	}
	if claims.Subject == ownerID && ownerID != "" {
		return true
	}
	if claims.IsSuper {
		return true
	}
	for _, c := range claims.Permissions {
		if c == code {
			return true
		}
	}
	return false
}
