package auth

import "context"

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySites   contextKey = "auth.site_ids"
	contextKeySubject contextKey = "auth.subject"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, role Role, siteIDs []string, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySites, siteIDs)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SiteIDsFromContext extracts the site scope from context. Nil means the
// identity is not scoped to specific sites.
func SiteIDsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	value := ctx.Value(contextKeySites)
	if siteIDs, ok := value.([]string); ok {
		return siteIDs
	}
	return nil
}

// CanAccessSite reports whether the context identity may read the site.
func CanAccessSite(ctx context.Context, siteID string) bool {
	siteIDs := SiteIDsFromContext(ctx)
	if len(siteIDs) == 0 {
		return true
	}
	for _, allowed := range siteIDs {
		if allowed == siteID {
			return true
		}
	}
	return false
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeySubject)
	if subject, ok := value.(string); ok {
		return subject
	}
	return ""
}
