package filters

import (
	"bytes"
	"compress/zlib"
	"fmt"
)

// FlateEncode compresses data for a FlateDecode stream. level follows
// compress/flate: 0 stores, 9 compresses hardest, -1 is the default.
func FlateEncode(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("filters: flate level %d: %w", level, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
