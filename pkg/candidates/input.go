package candidates

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// stdinPath selects standard input.
const stdinPath = "-"

const lz4Ext = ".lz4"

type readCloser struct {
	io.Reader
	io.Closer
}

// OpenInput opens the candidate stream. An empty path or "-" selects standard
// input; a path ending in ".lz4" is decompressed on the fly.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == "" || path == stdinPath {
		return os.Stdin, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}

	if !strings.HasSuffix(strings.ToLower(path), lz4Ext) {
		return file, nil
	}

	return readCloser{Reader: lz4.NewReader(file), Closer: file}, nil
}
