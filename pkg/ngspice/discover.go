package ngspice

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/edp1096/spicebridge/pkg/mempool"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

// EnvLibraryPath names the environment variable checked for the module path.
const EnvLibraryPath = "NGSPICE_WASM"

const libraryFile = "ngspice.wasm"

// WasmLoader finds and loads an ngspice wasm module.
type WasmLoader struct {
	// Path, when set, is the only location tried.
	Path string
	// SearchPaths are tried after $NGSPICE_WASM and before the platform
	// defaults. Entries may name the file or a directory holding ngspice.wasm.
	SearchPaths []string
	// Stdout and Stderr receive guest WASI output. Nil discards it.
	Stdout, Stderr io.Writer
	PoolOptions    []mempool.Option
}

func (w *WasmLoader) Load(ctx context.Context) (Library, error) {
	path, searched := w.Locate()
	if path == "" {
		return nil, simerr.NgSpiceNotFound(searched)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.LibraryError("reading "+path, err)
	}
	return LoadBytes(ctx, source, w.Stdout, w.Stderr, w.PoolOptions...)
}

// Locate returns the first existing candidate and every path it looked at.
func (w *WasmLoader) Locate() (string, []string) {
	var candidates []string
	if w.Path != "" {
		candidates = []string{w.Path}
	} else {
		if env := os.Getenv(EnvLibraryPath); env != "" {
			candidates = append(candidates, env)
		}
		candidates = append(candidates, w.SearchPaths...)
		candidates = append(candidates, DefaultSearchPaths()...)
	}

	searched := make([]string, 0, len(candidates))
	for _, c := range candidates {
		path := c
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, libraryFile)
		}
		searched = append(searched, path)

		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, searched
		}
	}
	return "", searched
}

// DefaultSearchPaths lists the platform locations checked for ngspice.wasm.
func DefaultSearchPaths() []string {
	paths := []string{libraryFile}

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), libraryFile))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "spicebridge", libraryFile))
	}

	switch runtime.GOOS {
	case "windows":
		paths = append(paths,
			`C:\Program Files\ngspice\lib\ngspice.wasm`,
			`C:\Spice64\lib\ngspice.wasm`,
		)
	case "darwin":
		paths = append(paths,
			"/opt/homebrew/lib/ngspice/ngspice.wasm",
			"/usr/local/lib/ngspice/ngspice.wasm",
		)
	default:
		paths = append(paths,
			"/usr/local/lib/ngspice/ngspice.wasm",
			"/usr/lib/ngspice/ngspice.wasm",
			"/usr/share/ngspice/ngspice.wasm",
		)
	}
	return paths
}
