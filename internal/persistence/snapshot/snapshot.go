package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// ErrCorrupt marks a snapshot file that exists but cannot be decoded.
// Startup treats it as fatal rather than silently starting fresh.
var ErrCorrupt = errors.New("snapshot corrupt")

type Header struct {
	Version int   `json:"version"`
	SavedAt int64 `json:"saved_at_unix_ms"`
}

type BagItemV1 struct {
	ID    int
	Type  int
	Value int
}

type DogV1 struct {
	ID          int
	Pos         [2]float64
	Vel         [2]float64
	Dir         string
	BagCapacity int
	Bag         []BagItemV1
	Score       int
}

type PlayerV1 struct {
	Name  string
	Token string
	Dog   DogV1
}

type LostObjectV1 struct {
	ID    int
	Type  int
	Value int
	Pos   [2]float64
}

// SessionV1 captures one map session; the slice index in SnapshotV1 is the
// session id.
type SessionV1 struct {
	Players    []PlayerV1
	Items      []LostObjectV1
	NextItemID int
}

type SnapshotV1 struct {
	Header   Header
	Sessions []SessionV1
}

// Write saves the snapshot to path atomically: the body goes to a sibling
// temp file which is renamed over the destination.
func Write(path string, snap SnapshotV1) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// Read loads a snapshot. A missing file reports found=false with a nil
// error; any other open error is returned as is, and a file that opens but
// does not decode yields an error wrapping ErrCorrupt.
func Read(path string) (snap SnapshotV1, found bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, false, nil
		}
		return snap, false, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, true, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is advisory; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, true, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, true, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if snap.Header.Version != Version {
		return snap, true, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, snap.Header.Version)
	}
	return snap, true, nil
}
