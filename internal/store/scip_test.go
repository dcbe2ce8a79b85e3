package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"wisp/internal/logging"
	"wisp/internal/symbols"
)

func writeIndex(t *testing.T, index *scippb.Index) string {
	t.Helper()
	data, err := proto.Marshal(index)
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}
	path := filepath.Join(t.TempDir(), "index.scip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSeedFromSCIP(t *testing.T) {
	symbolID := "scip-go gomod example . . `pkg`/NewWidget()."
	index := &scippb.Index{
		Metadata: &scippb.Metadata{ProjectRoot: "file:///ws"},
		Documents: []*scippb.Document{{
			RelativePath: "pkg/widget.go",
			Text:         "package pkg\n",
			Symbols: []*scippb.SymbolInformation{{
				Symbol:      symbolID,
				DisplayName: "NewWidget",
				Kind:        scippb.SymbolInformation_Function,
				Relationships: []*scippb.Relationship{{
					Symbol:      "scip-go gomod example . . `pkg`/render().",
					IsReference: true,
				}},
			}},
			Occurrences: []*scippb.Occurrence{{
				Symbol:      symbolID,
				SymbolRoles: int32(scippb.SymbolRole_Definition),
				Range:       []int32{4, 0, 6, 1},
			}},
		}},
	}

	st := New(symbols.NewExtractor(), logging.Discard())
	version, err := st.SeedFromSCIP(context.Background(), writeIndex(t, index))
	if err != nil {
		t.Fatalf("SeedFromSCIP: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}

	snap := st.Snapshot()
	uri := "file:///ws/pkg/widget.go"
	if _, ok := snap.Document(uri); !ok {
		t.Fatalf("document %s not seeded; have %v", uri, snap.URIs())
	}

	syms := snap.SymbolsNamed("NewWidget")
	if len(syms) != 1 {
		t.Fatalf("SymbolsNamed = %v", syms)
	}
	if syms[0].Kind != "function" || syms[0].Line != 5 || syms[0].EndLine != 7 {
		t.Errorf("symbol = %+v", syms[0])
	}

	found := false
	for _, callee := range snap.Callees("NewWidget") {
		if callee == "render" {
			found = true
		}
	}
	if !found {
		t.Errorf("Callees(NewWidget) = %v, want render", snap.Callees("NewWidget"))
	}
}

func TestSeedFromSCIPMissingFile(t *testing.T) {
	st := New(symbols.NewExtractor(), logging.Discard())
	if _, err := st.SeedFromSCIP(context.Background(), filepath.Join(t.TempDir(), "absent.scip")); err == nil {
		t.Error("missing index accepted")
	}
	if st.Version() != 0 {
		t.Errorf("version moved to %d on failed seed", st.Version())
	}
}

func TestSeedFromSCIPGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.scip")
	// Field 1 with wire type 7 is not decodable protobuf.
	if err := os.WriteFile(path, []byte{0x0f, 0xff, 0xff}, 0o644); err != nil {
		t.Fatal(err)
	}

	st := New(symbols.NewExtractor(), logging.Discard())
	if _, err := st.SeedFromSCIP(context.Background(), path); err == nil {
		t.Error("garbage index accepted")
	}
}
