package resolver

// Unknown is returned whenever a lookup misses or fails
const Unknown = "unknown"

// Resolver looks up agent display names and external ids for linked calls.
// Implementations never return an error; failures degrade to Unknown.
type Resolver interface {
	Name(extension string) string
	ExternalID(linkedID string) string
}

// Static serves lookups from fixed maps
type Static struct {
	Names       map[string]string
	ExternalIDs map[string]string
}

func (s Static) Name(extension string) string {
	if n, ok := s.Names[extension]; ok {
		return n
	}
	return Unknown
}

func (s Static) ExternalID(linkedID string) string {
	if id, ok := s.ExternalIDs[linkedID]; ok {
		return id
	}
	return Unknown
}
