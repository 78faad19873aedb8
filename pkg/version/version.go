package version

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Set at build time with -ldflags "-X mqwire/pkg/version.Revision=...".
var (
	Version   string = "0.3"
	Revision  string = ""
	BuildId   string = ""
	BuildTime string = ""
)

func OnelineVersionString() string {
	parts := []string{Version}
	for _, s := range []string{Revision, BuildId} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

func WriteVersionInfo(w io.Writer) {
	binName := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "\nmqwire %s %s\n\n", binName, Version)

	if BuildId != "" {
		fmt.Fprintf(w, "  Build No. : %s\n", BuildId)
	}
	if Revision != "" {
		fmt.Fprintf(w, "  Git Commit: %s\n", Revision)
	}
	fmt.Fprintf(w, "  Go Version: %s\n  OS/Arch   : %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(w, "  Built     : %s\n", BuildTime)
	}
	fmt.Fprintf(w, "\n")
}

func PrintVersionInfo() {
	WriteVersionInfo(os.Stdout)
}
