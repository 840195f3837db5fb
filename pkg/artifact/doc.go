// Package artifact opens binary artifacts and extracts their static
// dependency declarations.
//
// Artifacts are ELF executables and shared objects. Opening one never runs
// it: only the dynamic section and the versioned import table are read.
//
// # Declarations
//
// Every DT_NEEDED entry becomes a [Declaration]:
//
//   - Name: the entry itself, e.g. "libssl.so.3"
//   - Version: the soname suffix after ".so.", e.g. "3"
//   - Signature: the symbol-version namespace the artifact requires from
//     that library, e.g. "OPENSSL" for symbols bound to "OPENSSL_3.0.0"
//
// The signature identifies who publishes a library independently of its file
// name, which is what the trust filter keys on.
//
// # Search Paths
//
// DT_RPATH and DT_RUNPATH are split on ':' and have $ORIGIN and $LIB
// expanded, so resolvers can use them directly.
package artifact
