package libr

import (
	"os"
	"path/filepath"
	"runtime"
)

// SearchPaths returns the directories tried when locating libR.
// R_HOME/lib comes first when set.
func SearchPaths() []string {
	var paths []string
	if home := os.Getenv("R_HOME"); home != "" {
		paths = append(paths, filepath.Join(home, "lib"))
	}

	switch runtime.GOOS {
	case "linux", "freebsd":
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			paths = append(paths, filepath.SplitList(ldPath)...)
		}
		paths = append(paths,
			"/usr/lib/R/lib",
			"/usr/lib64/R/lib",
			"/usr/local/lib/R/lib",
			"/opt/R/lib/R/lib",
		)
	case "darwin":
		if dyldPath := os.Getenv("DYLD_LIBRARY_PATH"); dyldPath != "" {
			paths = append(paths, filepath.SplitList(dyldPath)...)
		}
		paths = append(paths,
			"/Library/Frameworks/R.framework/Resources/lib",
			"/opt/homebrew/lib/R/lib",
			"/usr/local/lib/R/lib",
		)
	}
	return paths
}

// LibraryName returns the platform file name of libR.
func LibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libR.dylib"
	case "windows":
		return "R.dll"
	default:
		return "libR.so"
	}
}

// Find returns the first existing libR in SearchPaths.
func Find() (string, bool) {
	name := LibraryName()
	for _, dir := range SearchPaths() {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}
