package storage

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pixil98/go-testutil"
)

type mockStoreSpec struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

func (s *mockStoreSpec) Validate() error {
	return nil
}

func writeAsset(t *testing.T, path, id string, spec *mockStoreSpec) {
	t.Helper()
	asset := &Asset[*mockStoreSpec]{Version: 1, Identifier: Identifier(id), Spec: spec}
	if err := WriteFile(path, asset); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestNewFileStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "path", store.path, tmpDir)
	testutil.AssertEqual(t, "records length", len(store.records), 0)
}

func TestNewFileStore_Errors(t *testing.T) {
	tests := map[string]struct {
		setup  func(t *testing.T, dir string)
		opts   []FileStoreOpt
		expErr string
	}{
		"missing directory": {
			setup:  func(t *testing.T, dir string) { _ = os.RemoveAll(dir) },
			expErr: "no such file",
		},
		"invalid json": {
			setup: func(t *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{invalid json`), 0o644)
			},
			expErr: "unmarshalling bad.json",
		},
		"invalid asset": {
			setup: func(t *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "old.yaml"), []byte("id: old\nspec:\n  name: x\n"), 0o644)
			},
			expErr: "version must be set",
		},
		"duplicate key": {
			setup: func(t *testing.T, dir string) {
				writeAsset(t, filepath.Join(dir, "a.json"), "same", &mockStoreSpec{})
				writeAsset(t, filepath.Join(dir, "sub", "b.yaml"), "same", &mockStoreSpec{})
			},
			expErr: "duplicate key detected: same",
		},
		"unsupported extension": {
			setup:  func(t *testing.T, dir string) {},
			opts:   []FileStoreOpt{WithExtension(".xml")},
			expErr: "unsupported store extension",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			_, err := NewFileStore[*mockStoreSpec](dir, tt.opts...)
			testutil.AssertErrorContains(t, err, tt.expErr)
		})
	}
}

func TestNewFileStore_ReadsEveryFormat(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, filepath.Join(dir, "one.json"), "one", &mockStoreSpec{Name: "First", Value: 1})
	writeAsset(t, filepath.Join(dir, "two.yaml"), "two", &mockStoreSpec{Name: "Second", Value: 2})
	writeAsset(t, filepath.Join(dir, "nested", "three.yml"), "three", &mockStoreSpec{Name: "Third", Value: 3})
	writeAsset(t, filepath.Join(dir, "four.json.zst"), "four", &mockStoreSpec{Name: "Fourth", Value: 4})
	_ = os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore me"), 0o644)

	store, err := NewFileStore[*mockStoreSpec](dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ids := store.Ids(); !slices.Equal(ids, []string{"four", "one", "three", "two"}) {
		t.Errorf("ids: got %v", ids)
	}
	testutil.AssertEqual(t, "yaml name", store.Get("two").Name, "Second")
	testutil.AssertEqual(t, "compressed value", store.Get("four").Value, 4)
	testutil.AssertEqual(t, "missing", store.Get("five") == nil, true)
}

func TestFileStore_GetAllReturnsCopy(t *testing.T) {
	store, err := NewFileStore[*mockStoreSpec](t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}
	store.records = map[string]*mockStoreSpec{
		"one": {Name: "One", Value: 1},
		"two": {Name: "Two", Value: 2},
	}

	result := store.GetAll()
	delete(result, "one")

	testutil.AssertEqual(t, "store untouched", len(store.records), 2)
}

func TestFileStore_Save(t *testing.T) {
	tests := map[string]struct {
		ext     string
		expFile string
	}{
		"default json":    {ext: "", expFile: "lobby.json"},
		"yaml":            {ext: ".yaml", expFile: "lobby.yaml"},
		"compressed json": {ext: ".json.zst", expFile: "lobby.json.zst"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			var opts []FileStoreOpt
			if tt.ext != "" {
				opts = append(opts, WithExtension(tt.ext))
			}
			store, err := NewFileStore[*mockStoreSpec](dir, opts...)
			if err != nil {
				t.Fatalf("unexpected error creating store: %v", err)
			}

			if err := store.Save("lobby", &mockStoreSpec{Name: "Lobby", Value: 7}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "cached", store.Get("lobby").Value, 7)

			asset, err := ReadFile[*mockStoreSpec](filepath.Join(dir, tt.expFile))
			if err != nil {
				t.Fatalf("reading saved file: %v", err)
			}
			testutil.AssertEqual(t, "asset version", asset.Version, uint(1))
			testutil.AssertEqual(t, "asset id", asset.Identifier, Identifier("lobby"))
			testutil.AssertEqual(t, "spec name", asset.Spec.Name, "Lobby")

			reloaded, err := NewFileStore[*mockStoreSpec](dir)
			if err != nil {
				t.Fatalf("reloading: %v", err)
			}
			testutil.AssertEqual(t, "reloaded", reloaded.Get("lobby").Name, "Lobby")
		})
	}
}

func TestFileStore_SaveKeepsOriginalFile(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "halls", "main.yaml")
	writeAsset(t, original, "main", &mockStoreSpec{Name: "Initial", Value: 1})

	store, err := NewFileStore[*mockStoreSpec](dir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}
	if err := store.Save("main", &mockStoreSpec{Name: "Updated", Value: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "main.json")); !os.IsNotExist(err) {
		t.Errorf("expected no new file, stat returned %v", err)
	}
	asset, err := ReadFile[*mockStoreSpec](original)
	if err != nil {
		t.Fatalf("reading original: %v", err)
	}
	testutil.AssertEqual(t, "updated in place", asset.Spec.Name, "Updated")
}

func TestFileStore_SaveRejectsBadIdentifier(t *testing.T) {
	store, err := NewFileStore[*mockStoreSpec](t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	err = store.Save("../escape", &mockStoreSpec{})
	testutil.AssertErrorContains(t, err, "may only hold letters, digits")
	testutil.AssertEqual(t, "not cached", store.Get("../escape") == nil, true)
}

func TestFileStore_filePath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore[*mockStoreSpec](dir, WithExtension(".yml"))
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	testutil.AssertEqual(t, "file path", store.filePath("test-id"), filepath.Join(dir, "test-id.yml"))
}
