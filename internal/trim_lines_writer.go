package internal

import (
	"bytes"
	"io"
)

func trim(p []byte) []byte {
	return bytes.TrimRight(p, " \t\r")
}

// TrimWriteCloser strips trailing whitespace from every line written
// through it. Whitespace at the end of a write is held back until the rest
// of the line is known.
type TrimWriteCloser struct {
	internal   io.WriteCloser
	whitespace *bytes.Buffer
	err        error
}

func NewTrimWriteCloser(internal io.WriteCloser) *TrimWriteCloser {
	return NewTrimWriteCloserWithBufferSize(internal, 256)
}

func NewTrimWriteCloserWithBufferSize(internal io.WriteCloser, size int) *TrimWriteCloser {
	return &TrimWriteCloser{
		internal:   internal,
		whitespace: bytes.NewBuffer(make([]byte, 0, size)),
	}
}

func (w *TrimWriteCloser) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n := len(p)
	for index := bytes.IndexByte(p, '\n'); index != -1; index = bytes.IndexByte(p, '\n') {
		line := trim(p[:index])
		if len(line) != 0 && w.whitespace.Len() > 0 {
			if err := w.write(w.whitespace.Bytes()); err != nil {
				return 0, err
			}
		}
		w.whitespace.Reset()
		if err := w.write(line); err != nil {
			return 0, err
		}
		if err := w.write(nl); err != nil {
			return 0, err
		}
		p = p[index+1:]
	}

	if len(p) > 0 {
		text := trim(p)
		if len(text) > 0 && w.whitespace.Len() > 0 {
			if err := w.write(w.whitespace.Bytes()); err != nil {
				return 0, err
			}
			w.whitespace.Reset()
		}
		if err := w.write(text); err != nil {
			return 0, err
		}
		w.whitespace.Write(p[len(text):])
	}
	return n, nil
}

func (w *TrimWriteCloser) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := w.internal.Write(p); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Close drops pending trailing whitespace and closes the wrapped writer.
func (w *TrimWriteCloser) Close() error {
	return w.internal.Close()
}
