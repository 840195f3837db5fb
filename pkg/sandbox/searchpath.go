package sandbox

import (
	"bufio"
	"debug/elf"
	"os"
	"path/filepath"
	"strings"
)

// LdConfig is the loader configuration consulted for system directories.
const LdConfig = "/etc/ld.so.conf"

// maxIncludeDepth bounds nested "include" directives in ld.so.conf.
const maxIncludeDepth = 8

// SystemDirs returns the trusted system library directories for class: the
// entries of /etc/ld.so.conf (following include directives) followed by the
// loader's compiled-in defaults.
func SystemDirs(class elf.Class) []string {
	dirs := ReadLdConfig(LdConfig)
	if class == elf.ELFCLASS64 {
		dirs = append(dirs, "/lib64", "/usr/lib64")
	}
	dirs = append(dirs, "/lib", "/usr/lib")
	return dedupe(dirs)
}

// ReadLdConfig parses an ld.so.conf style file. Missing files yield nil.
func ReadLdConfig(path string) []string {
	return readLdConfig(path, 0, make(map[string]bool))
}

func readLdConfig(path string, depth int, seen map[string]bool) []string {
	if depth > maxIncludeDepth || seen[path] {
		return nil
	}
	seen[path] = true

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var dirs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if pattern, ok := strings.CutPrefix(line, "include"); ok && (pattern == "" || pattern[0] == ' ' || pattern[0] == '\t') {
			for _, p := range strings.Fields(pattern) {
				if !filepath.IsAbs(p) {
					p = filepath.Join(filepath.Dir(path), p)
				}
				matches, _ := filepath.Glob(p)
				for _, m := range matches {
					dirs = append(dirs, readLdConfig(m, depth+1, seen)...)
				}
			}
			continue
		}
		if strings.HasPrefix(line, "hwcap ") {
			continue
		}

		// Legacy "dir=TYPE" entries.
		if i := strings.IndexByte(line, '='); i > 0 {
			line = line[:i]
		}
		for _, d := range strings.FieldsFunc(line, func(r rune) bool { return r == ':' || r == ',' || r == ' ' || r == '\t' }) {
			dirs = append(dirs, filepath.Clean(d))
		}
	}
	return dirs
}

// EnvSearchPath splits an LD_LIBRARY_PATH style value. Empty elements are
// dropped rather than meaning the working directory.
func EnvSearchPath(value string) []string {
	var dirs []string
	for _, d := range strings.FieldsFunc(value, func(r rune) bool { return r == ':' || r == ';' }) {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, filepath.Clean(d))
		}
	}
	return dirs
}

func dedupe(dirs []string) []string {
	seen := make(map[string]bool, len(dirs))
	out := dirs[:0:0]
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
