package session

import (
	"strings"

	"gotogrow/portal/internal/config"
)

// PathClass is the closed classification of a request path. Every path maps
// to exactly one class; overlaps resolve by precedence: public first, then
// auth-only, then character-required, with everything else protected.
type PathClass int

const (
	PathPublic PathClass = iota
	PathAuthOnly
	PathCharacterRequired
	PathProtected
)

func (p PathClass) String() string {
	switch p {
	case PathPublic:
		return "public"
	case PathAuthOnly:
		return "auth-only"
	case PathCharacterRequired:
		return "character-required"
	default:
		return "protected"
	}
}

// Classifier classifies paths from configured prefix lists. It is a pure
// function of the path string; no request state is consulted.
type Classifier struct {
	public        []string
	authOnly      []string
	characterReqd []string
}

func NewClassifier(cfg config.SessionConfig) *Classifier {
	return &Classifier{
		public:        cfg.PublicPaths,
		authOnly:      cfg.AuthOnlyPaths,
		characterReqd: cfg.CharacterPaths,
	}
}

func (c *Classifier) Classify(path string) PathClass {
	if matchAny(c.public, path) {
		return PathPublic
	}
	if matchAny(c.authOnly, path) {
		return PathAuthOnly
	}
	if matchAny(c.characterReqd, path) {
		return PathCharacterRequired
	}
	return PathProtected
}

func matchAny(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if matchPrefix(prefix, path) {
			return true
		}
	}
	return false
}

// matchPrefix treats "/" and paths with extensions as exact matches; any
// other entry matches itself and everything below it.
func matchPrefix(prefix, path string) bool {
	if prefix == "/" || strings.Contains(prefix, ".") {
		return path == prefix
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
