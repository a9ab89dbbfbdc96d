package selector

import (
	"context"
	"errors"
	"testing"
)

type fakeFS struct {
	files map[string][]byte
	walkErr error
}

func (f fakeFS) Read(ctx context.Context, path string) ([]byte, error) {
	content, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return content, nil
}

func (f fakeFS) Walk(ctx context.Context, root string, ignoreGlobs []string) ([]string, error) {
	if f.walkErr != nil {
		return nil, f.walkErr
	}
	out := make([]string, 0, len(f.files))
	for p := range f.files {
		out = append(out, p)
	}
	return out, nil
}

type fakeVCS struct {
	changed []string
	err     error
}

func (v fakeVCS) ChangedFiles(ctx context.Context, base, head string) ([]string, error) {
	return v.changed, v.err
}

func TestSelectFullScanLoadsAllFiles(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{
		"main.go":  []byte("package main\n"),
		"lib.py":   []byte("print(1)\n"),
	}}
	s := New(fs)
	result := s.Select(context.Background(), Params{Root: "."})
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(result.Files))
	}
}

func TestSelectDetectsLanguageByExtension(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{"main.go": []byte("package main\n")}}
	s := New(fs)
	result := s.Select(context.Background(), Params{Root: "."})
	if result.Files[0].Language != "go" {
		t.Fatalf("expected language go, got %q", result.Files[0].Language)
	}
}

func TestSelectFlagsBinaryContent(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{"bin.dat": {0x00, 0x01, 0x02}}}
	s := New(fs)
	result := s.Select(context.Background(), Params{Root: "."})
	if !result.Files[0].IsBinary {
		t.Fatal("expected binary content flagged IsBinary")
	}
}

func TestSelectIncrementalWithoutVCSFallsBackToFullScan(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{"main.go": []byte("package main\n")}}
	s := New(fs)
	result := s.Select(context.Background(), Params{Root: ".", Incremental: true})
	if len(result.Files) != 1 {
		t.Fatalf("expected fallback full scan to still find the file, got %d", len(result.Files))
	}
	if len(result.Advisories) == 0 || result.Advisories[0] == "" {
		t.Fatal("expected an incremental_fallback advisory")
	}
}

func TestSelectIncrementalWithVCSErrorFallsBack(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{"main.go": []byte("package main\n")}}
	s := New(fs, WithVCS(fakeVCS{err: errors.New("no git repo")}))
	result := s.Select(context.Background(), Params{Root: ".", Incremental: true, Base: "a", Head: "b"})
	if len(result.Files) != 1 {
		t.Fatalf("expected fallback full scan on VCS error, got %d files", len(result.Files))
	}
}

func TestSelectIncrementalUsesChangedFilesOnly(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{
		"a.go": []byte("package a\n"),
		"b.go": []byte("package b\n"),
	}}
	s := New(fs, WithVCS(fakeVCS{changed: []string{"a.go"}}))
	result := s.Select(context.Background(), Params{Root: ".", Incremental: true, Base: "a", Head: "b"})
	if len(result.Files) != 1 || result.Files[0].Path != "a.go" {
		t.Fatalf("expected only the changed file loaded, got %+v", result.Files)
	}
}

func TestSelectIncrementalDetectsRefsFromCIEnvironment(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{
		"a.go": []byte("package a\n"),
		"b.go": []byte("package b\n"),
	}}
	env := map[string]string{"GITHUB_BASE_REF": "main", "GITHUB_SHA": "abc123"}
	s := New(fs, WithVCS(fakeVCS{changed: []string{"a.go"}}), WithEnv(env))
	result := s.Select(context.Background(), Params{Root: ".", Incremental: true})
	if len(result.Files) != 1 || result.Files[0].Path != "a.go" {
		t.Fatalf("expected CI-detected refs to drive an incremental scan, got %+v", result.Files)
	}
}

func TestSelectIncrementalFallsBackWhenNoRefsAndNoRecognizedCI(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{"a.go": []byte("package a\n")}}
	s := New(fs, WithVCS(fakeVCS{changed: []string{"a.go"}}), WithEnv(map[string]string{"UNRELATED": "x"}))
	result := s.Select(context.Background(), Params{Root: ".", Incremental: true})
	if len(result.Files) != 1 {
		t.Fatalf("expected full-scan fallback to still find the file, got %d", len(result.Files))
	}
	found := false
	for _, a := range result.Advisories {
		if a == "incremental_fallback: no Base/Head set and no recognized CI platform" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the no-CI-detected advisory, got %+v", result.Advisories)
	}
}

func TestSelectSkipsUnreadableFilesWithAdvisory(t *testing.T) {
	fs := fakeFS{files: map[string][]byte{"a.go": []byte("package a\n")}}
	s := New(fs, WithVCS(fakeVCS{changed: []string{"a.go", "missing.go"}}))
	result := s.Select(context.Background(), Params{Root: ".", Incremental: true, Base: "a", Head: "b"})
	if len(result.Files) != 1 {
		t.Fatalf("expected only the readable file loaded, got %d", len(result.Files))
	}
	found := false
	for _, a := range result.Advisories {
		if a == "unreadable_file: missing.go: not found" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an unreadable_file advisory, got %+v", result.Advisories)
	}
}

func TestMatchesAnyIgnoresVendorTree(t *testing.T) {
	if !matchesAny("vendor/pkg/file.go", DefaultIgnoreGlobs) {
		t.Fatal("expected vendor/** glob to match a file under vendor/")
	}
	if matchesAny("internal/pkg/file.go", DefaultIgnoreGlobs) {
		t.Fatal("expected internal/ path to not match any default ignore glob")
	}
}
