package download

import (
	"fmt"
	"os"
)

// Store persists the download bitmap next to the output file. The canonical
// record lives at <output>.tmp; every save goes through <output>.1.tmp and
// an atomic rename, so the canonical path always holds a complete
// serialization of some saved state, never a torn one. Presence of the
// canonical path is the resume signal.
type Store struct {
	path      string
	stagePath string
}

func NewStore(outputPath string) *Store {
	return &Store{
		path:      outputPath + ".tmp",
		stagePath: outputPath + ".1.tmp",
	}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

func (s *Store) Save(m *Metadata) error {
	f, err := os.Create(s.stagePath)
	if err != nil {
		return fmt.Errorf("staging metadata file: %w", err)
	}
	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("serializing metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("flushing metadata file: %w", err)
	}
	if err := os.Rename(s.stagePath, s.path); err != nil {
		return fmt.Errorf("committing metadata file: %w", err)
	}
	return nil
}

func (s *Store) Load(numChunks uint32) (*Metadata, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close()
	m := NewMetadata(numChunks)
	if _, err := m.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("decoding metadata file: %w", err)
	}
	// A record can only belong to this download if every marked chunk fits
	// the chunk count recomputed from the file size.
	if max, ok := m.MaxDone(); ok && max >= numChunks {
		return nil, fmt.Errorf("metadata file does not match expected chunk count %d", numChunks)
	}
	return m, nil
}

func (s *Store) Delete() error {
	return os.Remove(s.path)
}

// DiscardEmpty removes a zero-length record, which a run killed before its
// first save can leave behind. Reports whether a usable record remains.
func (s *Store) DiscardEmpty() (bool, error) {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		if err := os.Remove(s.path); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Clean removes any resume state for outputPath, staged or canonical.
func Clean(outputPath string) error {
	for _, p := range []string{outputPath + ".1.tmp", outputPath + ".tmp"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
