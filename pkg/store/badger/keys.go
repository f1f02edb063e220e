package badger

import "fmt"

// Key prefixes. Key parts are separated by a zero byte so ids may contain
// any printable character.
const (
	logPrefix      = "plog"
	artifactPrefix = "part"
	schemaPrefix   = "schema"
	sep            = "\x00"
)

func logDocumentPrefix(documentID string) []byte {
	return []byte(logPrefix + sep + documentID + sep)
}

// logKey sorts entries of a document by timestamp, then sequence number.
func logKey(documentID string, unixNano int64, seq int64) []byte {
	return fmt.Appendf(logDocumentPrefix(documentID), "%020d%s%020d", unixNano, sep, seq)
}

func artifactDocumentPrefix(documentID string) []byte {
	return []byte(artifactPrefix + sep + documentID + sep)
}

func artifactStagePrefix(documentID, stage string) []byte {
	return append(artifactDocumentPrefix(documentID), []byte(stage+sep)...)
}

func artifactKey(documentID, stage, name string) []byte {
	return append(artifactStagePrefix(documentID, stage), []byte(name)...)
}

func schemaScopePrefix(scope string) []byte {
	return []byte(schemaPrefix + sep + scope + sep)
}

// schemaKey sorts versions of a scope numerically.
func schemaKey(scope string, version int) []byte {
	return fmt.Appendf(schemaScopePrefix(scope), "%010d", version)
}
