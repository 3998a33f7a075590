package workflow

import "github.com/google/uuid"

// idNamespace scopes every identifier derived by StableID.
var idNamespace = uuid.MustParse("6f1c7a52-3b0e-5d8e-9a41-2c7d0b8e4f13")

// StableID derives a deterministic identifier from a qualified name. The same
// name yields the same ID across processes and rebuilds.
func StableID(qualifiedName string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(qualifiedName))
}

// childID derives an identifier scoped under parent.
func childID(parent uuid.UUID, kind, name string) uuid.UUID {
	return uuid.NewSHA1(parent, []byte(kind+":"+name))
}

// pairID derives an identifier for an ordered pair of identifiers.
func pairID(a, b uuid.UUID) uuid.UUID {
	buf := make([]byte, 0, 32)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return uuid.NewSHA1(idNamespace, buf)
}
