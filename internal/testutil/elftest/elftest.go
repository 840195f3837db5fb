// Package elftest synthesises minimal ELF64 files for tests.
//
// The files carry only what dependency inspection reads: a dynamic section
// with DT_NEEDED, DT_SONAME, DT_RPATH and DT_RUNPATH entries, its string
// table, and, when imports are given, the dynamic symbol table with GNU
// version requirements. They have no program headers and cannot be executed.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Spec describes one synthetic artifact.
type Spec struct {
	Machine elf.Machine // default EM_X86_64
	Type    elf.Type    // default ET_DYN
	SOName  string
	Needed  []string
	RPath   string
	RunPath string
	Imports []Import
}

// Import is one undefined dynamic symbol bound against a needed library.
type Import struct {
	Symbol  string
	Library string
	// Version is the symbol version tag, e.g. "GLIBC_2.34". Empty leaves
	// the symbol unversioned.
	Version string
}

const (
	ehdrSize = 64
	shdrSize = 64
	dynSize  = 16
	symSize  = 24
)

type section struct {
	name    string
	typ     elf.SectionType
	data    []byte
	link    uint32
	info    uint32
	align   uint64
	entsize uint64
}

// Bytes renders s as a little-endian ELF64 image.
func Bytes(s Spec) []byte {
	if s.Machine == 0 {
		s.Machine = elf.EM_X86_64
	}
	if s.Type == 0 {
		s.Type = elf.ET_DYN
	}
	le := binary.LittleEndian

	var dynstr bytes.Buffer
	dynstr.WriteByte(0)
	str := func(v string) uint32 {
		off := uint32(dynstr.Len())
		dynstr.WriteString(v)
		dynstr.WriteByte(0)
		return off
	}

	var dynamic []byte
	put := func(tag elf.DynTag, val uint32) {
		dynamic = le.AppendUint64(dynamic, uint64(tag))
		dynamic = le.AppendUint64(dynamic, uint64(val))
	}
	for _, n := range s.Needed {
		put(elf.DT_NEEDED, str(n))
	}
	if s.SOName != "" {
		put(elf.DT_SONAME, str(s.SOName))
	}
	if s.RPath != "" {
		put(elf.DT_RPATH, str(s.RPath))
	}
	if s.RunPath != "" {
		put(elf.DT_RUNPATH, str(s.RunPath))
	}
	put(elf.DT_NULL, 0)

	// Section header indices start at 1; 0 is the null section.
	sections := []section{
		{name: ".dynstr", typ: elf.SHT_STRTAB, align: 1},
		{name: ".dynamic", typ: elf.SHT_DYNAMIC, data: dynamic, link: 1, align: 8, entsize: dynSize},
	}
	if len(s.Imports) > 0 {
		dynsym, versym, verneed, nneed := versionTables(s.Imports, str)
		sections = append(sections,
			section{name: ".dynsym", typ: elf.SHT_DYNSYM, data: dynsym, link: 1, info: 1, align: 8, entsize: symSize},
			section{name: ".gnu.version", typ: elf.SHT_GNU_VERSYM, data: versym, link: 3, align: 2, entsize: 2},
			section{name: ".gnu.version_r", typ: elf.SHT_GNU_VERNEED, data: verneed, link: 1, info: nneed, align: 8},
		)
	}
	sections[0].data = dynstr.Bytes()

	sections = append(sections, section{name: ".shstrtab", typ: elf.SHT_STRTAB, align: 1})
	shstr := []byte{0}
	names := make([]uint32, len(sections))
	for i, sec := range sections {
		names[i] = uint32(len(shstr))
		shstr = append(append(shstr, sec.name...), 0)
	}
	sections[len(sections)-1].data = shstr

	offsets := make([]uint64, len(sections))
	off := uint64(ehdrSize)
	for i, sec := range sections {
		off = align(off, sec.align)
		offsets[i] = off
		off += uint64(len(sec.data))
	}
	shOff := align(off, 8)
	shnum := len(sections) + 1
	buf := make([]byte, shOff+uint64(shnum*shdrSize))

	// ELF header.
	copy(buf[0:4], elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(buf[16:], uint16(s.Type))
	le.PutUint16(buf[18:], uint16(s.Machine))
	le.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(buf[40:], shOff)
	le.PutUint16(buf[52:], ehdrSize)
	le.PutUint16(buf[54:], 56)
	le.PutUint16(buf[58:], shdrSize)
	le.PutUint16(buf[60:], uint16(shnum))
	le.PutUint16(buf[62:], uint16(shnum-1))

	for i, sec := range sections {
		copy(buf[offsets[i]:], sec.data)
		h := buf[shOff+uint64((i+1)*shdrSize):]
		le.PutUint32(h[0:], names[i])
		le.PutUint32(h[4:], uint32(sec.typ))
		le.PutUint64(h[24:], offsets[i])
		le.PutUint64(h[32:], uint64(len(sec.data)))
		le.PutUint32(h[40:], sec.link)
		le.PutUint32(h[44:], sec.info)
		le.PutUint64(h[48:], sec.align)
		le.PutUint64(h[56:], sec.entsize)
	}
	return buf
}

// versionTables builds .dynsym, .gnu.version and .gnu.version_r for
// imports. Version indices are assigned from 2 in order of first use.
func versionTables(imports []Import, str func(string) uint32) (dynsym, versym, verneed []byte, nneed uint32) {
	le := binary.LittleEndian
	type need struct {
		file string
		vers []string
		idx  map[string]uint16
	}
	var needs []*need
	byFile := make(map[string]*need)
	next := uint16(2)

	dynsym = make([]byte, symSize)
	versym = make([]byte, 2)
	for _, im := range imports {
		sym := make([]byte, symSize)
		le.PutUint32(sym[0:], str(im.Symbol))
		sym[4] = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
		dynsym = append(dynsym, sym...)

		ndx := uint16(1) // VER_NDX_GLOBAL
		if im.Version != "" {
			n := byFile[im.Library]
			if n == nil {
				n = &need{file: im.Library, idx: make(map[string]uint16)}
				byFile[im.Library] = n
				needs = append(needs, n)
			}
			v, ok := n.idx[im.Version]
			if !ok {
				v = next
				next++
				n.idx[im.Version] = v
				n.vers = append(n.vers, im.Version)
			}
			ndx = v
		}
		versym = le.AppendUint16(versym, ndx)
	}

	for i, n := range needs {
		entry := make([]byte, 16)
		le.PutUint16(entry[0:], 1)
		le.PutUint16(entry[2:], uint16(len(n.vers)))
		le.PutUint32(entry[4:], str(n.file))
		le.PutUint32(entry[8:], 16)
		if i < len(needs)-1 {
			le.PutUint32(entry[12:], uint32(16*(1+len(n.vers))))
		}
		verneed = append(verneed, entry...)
		for j, v := range n.vers {
			aux := make([]byte, 16)
			le.PutUint32(aux[0:], hash(v))
			le.PutUint16(aux[6:], n.idx[v])
			le.PutUint32(aux[8:], str(v))
			if j < len(n.vers)-1 {
				le.PutUint32(aux[12:], 16)
			}
			verneed = append(verneed, aux...)
		}
	}
	return dynsym, versym, verneed, uint32(len(needs))
}

// hash is the SysV ELF hash stored in vna_hash.
func hash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h<<4 + uint32(name[i])
		if g := h & 0xf0000000; g != 0 {
			h ^= g >> 24
		}
		h &^= 0xf0000000
	}
	return h
}

// Write renders s into dir/name, creating dir as needed, and returns the path.
func Write(t testing.TB, dir, name string, s Spec) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Bytes(s), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func align(v, a uint64) uint64 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}
