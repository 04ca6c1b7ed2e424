package table

import (
	"bytes"
	"io"

	"github.com/parquet-go/parquet-go"
)

func writeRows[R any](w io.Writer, rows []R) error {
	return parquet.Write(w, rows)
}

func readRows[R any](data []byte) ([]R, error) {
	return parquet.Read[R](bytes.NewReader(data), int64(len(data)))
}
