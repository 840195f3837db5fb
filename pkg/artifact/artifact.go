package artifact

import (
	"debug/elf"
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matzehuels/refcheck/pkg/errors"
)

// Declaration is one dependency named inside an artifact.
type Declaration struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// String renders the declaration the way status lines show it.
func (d Declaration) String() string {
	if d.Signature == "" {
		return d.Name
	}
	return d.Name + " [" + d.Signature + "]"
}

// Artifact is an opened binary. The zero value is not usable; call Open.
//
// Artifacts received over the sandbox worker channel are detached: every
// field is populated but Close is a no-op.
type Artifact struct {
	Path    string        `json:"path"`
	Name    string        `json:"name"`
	Class   elf.Class     `json:"class"`
	Machine elf.Machine   `json:"machine"`
	Deps    []Declaration `json:"deps,omitempty"`
	RPath   []string      `json:"rpath,omitempty"`
	RunPath []string      `json:"runpath,omitempty"`

	file *elf.File
}

// Open reads the artifact at path.
//
// Errors carry one of three codes: ErrCodeArtifactNotFound when nothing
// exists at path, ErrCodeArtifactUnreadable when the file cannot be read, and
// ErrCodeInvalidFormat when it is not a loadable ELF object.
func Open(path string) (*Artifact, error) {
	f, err := elf.Open(path)
	if err != nil {
		var fe *elf.FormatError
		switch {
		case stderrors.Is(err, fs.ErrNotExist):
			return nil, errors.Wrap(errors.ErrCodeArtifactNotFound, err, "artifact %s does not exist", path)
		case stderrors.As(err, &fe):
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "%s is not a valid ELF binary", path)
		case stderrors.Is(err, fs.ErrPermission):
			return nil, errors.Wrap(errors.ErrCodeArtifactUnreadable, err, "cannot read %s", path)
		default:
			// Short reads and similar surface as plain io errors.
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "%s is not a valid ELF binary", path)
		}
	}

	a, err := fromFile(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func fromFile(path string, f *elf.File) (*Artifact, error) {
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "%s is an ELF %s, not a loadable binary", path, f.Type)
	}

	a := &Artifact{
		Path:    path,
		Name:    filepath.Base(path),
		Class:   f.Class,
		Machine: f.Machine,
		file:    f,
	}

	needed, err := f.ImportedLibraries()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read dependencies of %s", path)
	}
	if soname, err := f.DynString(elf.DT_SONAME); err == nil && len(soname) > 0 {
		a.Name = soname[0]
	}

	origin := filepath.Dir(path)
	rpath, err := f.DynString(elf.DT_RPATH)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read rpath of %s", path)
	}
	runpath, err := f.DynString(elf.DT_RUNPATH)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read runpath of %s", path)
	}
	a.RPath = SplitSearchPath(rpath, origin, f.Class)
	a.RunPath = SplitSearchPath(runpath, origin, f.Class)

	sigs := signatures(f)
	for _, name := range needed {
		a.Deps = append(a.Deps, Declaration{
			Name:      name,
			Version:   sonameVersion(name),
			Signature: sigs[name],
		})
	}
	return a, nil
}

// Close releases the underlying file. It is safe to call more than once.
func (a *Artifact) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Compatible reports whether other could be loaded into the same process as a.
func (a *Artifact) Compatible(other *Artifact) bool {
	return a.Class == other.Class && a.Machine == other.Machine
}

// SplitSearchPath splits raw DT_RPATH/DT_RUNPATH values into directories,
// expanding $ORIGIN to origin and $LIB according to class. Empty elements
// are dropped.
func SplitSearchPath(raw []string, origin string, class elf.Class) []string {
	lib := "lib"
	if class == elf.ELFCLASS64 {
		lib = "lib64"
	}
	r := strings.NewReplacer(
		"${ORIGIN}", origin,
		"$ORIGIN", origin,
		"${LIB}", lib,
		"$LIB", lib,
	)

	var dirs []string
	for _, entry := range raw {
		for _, dir := range strings.Split(entry, ":") {
			if dir = strings.TrimSpace(dir); dir != "" {
				dirs = append(dirs, filepath.Clean(r.Replace(dir)))
			}
		}
	}
	return dirs
}

// signatures maps each needed library to the smallest symbol-version
// namespace the artifact binds against it.
func signatures(f *elf.File) map[string]string {
	syms, err := f.ImportedSymbols()
	if err != nil {
		return nil
	}

	seen := make(map[string]map[string]bool)
	for _, s := range syms {
		if s.Library == "" || s.Version == "" {
			continue
		}
		if seen[s.Library] == nil {
			seen[s.Library] = make(map[string]bool)
		}
		seen[s.Library][Namespace(s.Version)] = true
	}

	out := make(map[string]string, len(seen))
	for lib, set := range seen {
		names := make([]string, 0, len(set))
		for ns := range set {
			names = append(names, ns)
		}
		sort.Strings(names)
		out[lib] = names[0]
	}
	return out
}

// Namespace returns the publisher part of a symbol version tag:
// "GLIBC_2.34" -> "GLIBC", "Qt_5" -> "Qt". Tags without '_' are returned whole.
func Namespace(version string) string {
	ns, _, _ := strings.Cut(version, "_")
	return ns
}

func sonameVersion(name string) string {
	_, v, ok := strings.Cut(filepath.Base(name), ".so.")
	if !ok {
		return ""
	}
	return v
}
