package ir

// Version is the casediff release. Release builds set it with
// -ldflags "-X github.com/roach88/casediff/internal/ir.Version=<tag>".
var Version = "0.1.0-dev"

// ViewVersion is the version of the comparison views and of the canonical
// diff encoding. Diffs saved under another view version are not comparable.
const ViewVersion = "1"
