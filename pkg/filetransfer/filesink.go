package filetransfer

import "os"

// FileSink writes an incoming transfer to a file on disk, removing it if
// the transfer is discarded due to a hash mismatch.
type FileSink struct {
	path string
	f    *os.File
}

// CreateFileSink creates (truncating) the file at path for writing.
func CreateFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{path: path, f: f}, nil
}

func (s *FileSink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *FileSink) Close() error { return s.f.Close() }

// Discard closes and removes the underlying file.
func (s *FileSink) Discard() error {
	_ = s.f.Close()
	return os.Remove(s.path)
}

// FileSource reads an outgoing transfer from a file on disk.
type FileSource struct {
	f *os.File
}

// OpenFileSource opens path for reading as an outgoing transfer source.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{f: f}, nil
}

func (s *FileSource) Read(p []byte) (int, error) { return s.f.Read(p) }

func (s *FileSource) Close() error { return s.f.Close() }
