package sandbox

import (
	"debug/elf"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestReadLdConfig(t *testing.T) {
	dir := t.TempDir()
	confd := filepath.Join(dir, "ld.so.conf.d")
	if err := os.MkdirAll(confd, 0o755); err != nil {
		t.Fatal(err)
	}

	write := func(path, content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	main := filepath.Join(dir, "ld.so.conf")
	write(main, "# system\n/usr/local/lib\ninclude ld.so.conf.d/*.conf\n/opt/legacy=libc6\nhwcap 0 nosegneg\n")
	write(filepath.Join(confd, "a.conf"), "/opt/a/lib  # vendor a\n\n")
	write(filepath.Join(confd, "b.conf"), "/opt/b/lib:/opt/b/lib64\ninclude "+main+"\n")

	got := ReadLdConfig(main)
	want := []string{"/usr/local/lib", "/opt/a/lib", "/opt/b/lib", "/opt/b/lib64", "/opt/legacy"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadLdConfig = %v, want %v", got, want)
	}
}

func TestReadLdConfigMissing(t *testing.T) {
	if got := ReadLdConfig(filepath.Join(t.TempDir(), "nope")); got != nil {
		t.Errorf("ReadLdConfig(missing) = %v, want nil", got)
	}
}

func TestSystemDirsDefaults(t *testing.T) {
	dirs64 := SystemDirs(elf.ELFCLASS64)
	dirs32 := SystemDirs(elf.ELFCLASS32)

	contains := func(dirs []string, d string) bool {
		for _, x := range dirs {
			if x == d {
				return true
			}
		}
		return false
	}
	for _, d := range []string{"/lib64", "/usr/lib64", "/lib", "/usr/lib"} {
		if !contains(dirs64, d) {
			t.Errorf("64-bit dirs missing %s: %v", d, dirs64)
		}
	}
	if contains(dirs32, "/lib64") && !contains(ReadLdConfig(LdConfig), "/lib64") {
		t.Errorf("32-bit dirs should not default to /lib64: %v", dirs32)
	}
}

func TestEnvSearchPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/a", []string{"/a"}},
		{"/a::/b/", []string{"/a", "/b"}},
		{"/a;/b", []string{"/a", "/b"}},
	}
	for _, tt := range tests {
		if got := EnvSearchPath(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("EnvSearchPath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
