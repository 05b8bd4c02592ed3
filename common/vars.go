package common

// Version is set at build time with -ldflags "-X github.com/theirix/simple-file-repository/common.Version=..."
var Version = "dev"

// PackageName prefixes metric names.
const PackageName = "sfr"
