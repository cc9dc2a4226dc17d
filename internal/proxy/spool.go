package proxy

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
)

// spoolBody reads body once and returns two independent readers over the
// same bytes. Bodies larger than memLimit are spilled to a temp file in dir;
// the file is removed when both readers are closed.
func spoolBody(body io.Reader, dir string, memLimit int64) (a, b io.ReadCloser, size int64, err error) {
	if body == nil {
		body = bytes.NewReader(nil)
	}
	if memLimit < 0 {
		memLimit = 0
	}
	// CopyN below reads memLimit+1 bytes.
	if memLimit == math.MaxInt64 {
		memLimit--
	}

	var buf bytes.Buffer
	n, err := io.CopyN(&buf, body, memLimit+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, 0, err
	}
	if n <= memLimit {
		data := buf.Bytes()
		return io.NopCloser(bytes.NewReader(data)), io.NopCloser(bytes.NewReader(data)), n, nil
	}

	f, err := os.CreateTemp(dir, "fetch-cache-*")
	if err != nil {
		return nil, nil, 0, err
	}
	path := f.Name()
	size, err = buf.WriteTo(f)
	if err == nil {
		var rest int64
		rest, err = io.Copy(f, body)
		size += rest
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, nil, 0, err
	}

	sf := &spoolFile{path: path}
	sf.refs.Store(2)
	a, err = sf.open()
	if err != nil {
		os.Remove(path)
		return nil, nil, 0, err
	}
	b, err = sf.open()
	if err != nil {
		a.Close()
		os.Remove(path)
		return nil, nil, 0, err
	}
	return a, b, size, nil
}

type spoolFile struct {
	path string
	refs atomic.Int32
}

func (sf *spoolFile) open() (io.ReadCloser, error) {
	f, err := os.Open(sf.path)
	if err != nil {
		return nil, err
	}
	return &spoolReader{File: f, sf: sf}, nil
}

type spoolReader struct {
	*os.File
	sf   *spoolFile
	once sync.Once
}

func (r *spoolReader) Close() error {
	var err error
	r.once.Do(func() {
		err = r.File.Close()
		if r.sf.refs.Add(-1) == 0 {
			os.Remove(r.sf.path)
		}
	})
	return err
}
