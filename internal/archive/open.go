package archive

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"

	"github.com/sells-group/congress-cli/internal/resilience"
)

// MaxDecompressed caps the decoded size of one artifact.
const MaxDecompressed = 256 << 20

// ReadArtifact opens path and returns its fully decompressed contents. An
// absent file is MissingArtifact; an undecodable container is CorruptArchive.
func ReadArtifact(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, resilience.New(resilience.MissingArtifact, "archive: open", eris.Wrapf(err, "open %s", path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "archive: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return Decompress(f)
}

// Decompress decodes a gzip stream.
func Decompress(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, resilience.New(resilience.CorruptArchive, "archive: gzip header", err)
	}
	defer zr.Close() //nolint:errcheck

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(zr, MaxDecompressed+1))
	if err != nil {
		return nil, resilience.New(resilience.CorruptArchive, "archive: gzip body", err)
	}
	if n > MaxDecompressed {
		return nil, resilience.Newf(resilience.CorruptArchive, "archive: gzip body", "decompressed size exceeds %d bytes", MaxDecompressed)
	}
	return buf.Bytes(), nil
}
