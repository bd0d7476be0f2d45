package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if opts != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", opts)
	}
}

func TestLoadParsesYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "executable: C:\\app.exe\nntdll: C:\\Windows\\System32\\ntdll.dll\ntrace: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Executable != `C:\app.exe` || !opts.Trace {
		t.Errorf("Load() = %+v, unexpected values", opts)
	}
}

func TestMergeFlagsOverridesConfig(t *testing.T) {
	base := Options{Executable: "from-config.exe"}
	merged := base.MergeFlags("from-flag.exe", "ntdll.dll", true)

	if merged.Executable != "from-flag.exe" {
		t.Errorf("Executable = %q, want flag override", merged.Executable)
	}
	if merged.ImagePath != "from-flag.exe" {
		t.Errorf("ImagePath defaulted to %q, want executable path", merged.ImagePath)
	}
	if !merged.Trace {
		t.Errorf("Trace = false, want true")
	}
}

func TestValidateRequiresPaths(t *testing.T) {
	if err := (Options{}).Validate(); err == nil {
		t.Errorf("expected an error for missing paths")
	}
	if err := (Options{Executable: "a", Ntdll: "b"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
