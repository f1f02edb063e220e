package storage

import (
	"testing"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
)

func TestArtifactKeyRoundTrip(t *testing.T) {
	a := common.Artifact{DocumentID: "doc-1", Stage: "text_splitting", Name: "chunk_3.txt"}
	key := artifactKey(a)
	if key != "artifacts/doc-1/text_splitting/chunk_3.txt" {
		t.Fatalf("artifactKey() = %q", key)
	}

	doc, stage, name, ok := parseArtifactKey(key)
	if !ok || doc != a.DocumentID || stage != a.Stage || name != a.Name {
		t.Fatalf("parseArtifactKey() = %q %q %q %v", doc, stage, name, ok)
	}
}

func TestArtifactPrefix(t *testing.T) {
	if got := artifactPrefix("doc-1", ""); got != "artifacts/doc-1/" {
		t.Fatalf("document prefix = %q", got)
	}
	if got := artifactPrefix("doc-1", "indexing"); got != "artifacts/doc-1/indexing/" {
		t.Fatalf("stage prefix = %q", got)
	}
}

func TestParseArtifactKey_Rejects(t *testing.T) {
	for _, key := range []string{"uploads/doc-1/a.txt", "artifacts/doc-1/only-stage", "artifacts//stage/name"} {
		if _, _, _, ok := parseArtifactKey(key); ok {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}
