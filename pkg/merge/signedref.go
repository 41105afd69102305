package merge

import "regexp"

// Bodies embed references to stored resources as signed URLs. The signature
// segment is a rotating, time-limited token minted on every read over a
// stable underlying resource path:
//
//	https://files.example.com/v1/sig=AAAA/ws-1/attachments/foo.png
//
// Two fetches of the same unmodified body therefore differ byte-for-byte in
// every reference. StabilizeBody substitutes the old reference text wherever
// the stable path is unchanged, so the merged body compares equal unless a
// reference is genuinely new.
var (
	signedRef  = regexp.MustCompile(`[^\s"'<>]+/sig=[A-Za-z0-9_-]+/[^\s"'<>]+`)
	sigSegment = regexp.MustCompile(`/sig=[A-Za-z0-9_-]+/`)
)

// StablePath returns the resource path of a signed reference, with the
// signature segment and everything before it stripped. A string without a
// signature segment is returned unchanged.
func StablePath(ref string) string {
	loc := sigSegment.FindStringIndex(ref)
	if loc == nil {
		return ref
	}
	return ref[loc[1]:]
}

// StabilizeBody rewrites signed references in next whose stable path also
// occurs in old, substituting the old reference text. References whose path
// does not occur in old are left alone.
func StabilizeBody(old, next string) string {
	oldRefs := signedRef.FindAllString(old, -1)
	if len(oldRefs) == 0 {
		return next
	}
	byPath := make(map[string]string, len(oldRefs))
	for _, ref := range oldRefs {
		if _, ok := byPath[StablePath(ref)]; !ok {
			byPath[StablePath(ref)] = ref
		}
	}
	return signedRef.ReplaceAllStringFunc(next, func(ref string) string {
		if prev, ok := byPath[StablePath(ref)]; ok {
			return prev
		}
		return ref
	})
}
