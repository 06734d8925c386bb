package flat

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abiusch/penny-assistant-sub000/memory"
)

// The .index file is a little-endian binary: a fixed header followed by
// count rows of (id uint64, dim float32s). The .meta file is JSON. The pair
// is one logical unit: a loader that cannot read both, or finds their
// cardinalities disagree, treats the snapshot as absent or corrupt.

const (
	indexMagic   = 0x464C4154 // "FLAT"
	indexVersion = 1
)

type indexHeader struct {
	Magic   uint32
	Version uint32
	Dim     uint32
	Count   uint64
}

type metaFile struct {
	EmbeddingDim int                          `json:"embedding_dim"`
	NextID       uint64                       `json:"next_id"`
	Records      map[uint64]memory.TurnRecord `json:"id_to_record"`
}

// snapshot is the full state a save/load cycle round-trips.
type snapshot struct {
	ids     []uint64
	vectors [][]float32
	records map[uint64]memory.TurnRecord
	nextID  uint64
}

// errSnapshotMissing means one or both snapshot files do not exist; the
// pair counts as absent.
var errSnapshotMissing = errors.New("snapshot files missing")

func readSnapshot(path string, dim int) (*snapshot, error) {
	indexData, err := os.ReadFile(path + indexSuffix)
	if os.IsNotExist(err) {
		return nil, errSnapshotMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	metaData, err := os.ReadFile(path + metaSuffix)
	if os.IsNotExist(err) {
		return nil, errSnapshotMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read meta file: %w", err)
	}

	var meta metaFile
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("parse meta file: %w", err)
	}
	if meta.EmbeddingDim != dim {
		return nil, fmt.Errorf("meta file holds %d-dimensional vectors, store expects %d",
			meta.EmbeddingDim, dim)
	}

	r := bytes.NewReader(indexData)
	var header indexHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("parse index header: %w", err)
	}
	if header.Magic != indexMagic {
		return nil, fmt.Errorf("index file has bad magic %#x", header.Magic)
	}
	if header.Version != indexVersion {
		return nil, fmt.Errorf("index file version %d not supported", header.Version)
	}
	if int(header.Dim) != dim {
		return nil, fmt.Errorf("index file holds %d-dimensional vectors, store expects %d",
			header.Dim, dim)
	}
	if header.Count != uint64(len(meta.Records)) {
		return nil, fmt.Errorf("index file holds %d vectors but meta file holds %d records",
			header.Count, len(meta.Records))
	}

	snap := &snapshot{
		ids:     make([]uint64, 0, header.Count),
		vectors: make([][]float32, 0, header.Count),
		records: meta.Records,
		nextID:  meta.NextID,
	}
	if snap.records == nil {
		snap.records = make(map[uint64]memory.TurnRecord)
	}
	for i := uint64(0); i < header.Count; i++ {
		var id uint64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("parse vector row %d: %w", i, err)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("parse vector row %d: %w", i, err)
		}
		if _, ok := snap.records[id]; !ok {
			return nil, fmt.Errorf("vector id %d has no record in meta file", id)
		}
		if id >= snap.nextID {
			return nil, fmt.Errorf("vector id %d not below next id %d", id, snap.nextID)
		}
		snap.ids = append(snap.ids, id)
		snap.vectors = append(snap.vectors, vec)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("index file has %d trailing bytes", r.Len())
	}
	return snap, nil
}

func writeSnapshot(path string, dim int, snap *snapshot) error {
	var buf bytes.Buffer
	header := indexHeader{
		Magic:   indexMagic,
		Version: indexVersion,
		Dim:     uint32(dim),
		Count:   uint64(len(snap.ids)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("encode index header: %w", err)
	}
	for i, id := range snap.ids {
		if err := binary.Write(&buf, binary.LittleEndian, id); err != nil {
			return fmt.Errorf("encode vector row %d: %w", i, err)
		}
		if err := binary.Write(&buf, binary.LittleEndian, snap.vectors[i]); err != nil {
			return fmt.Errorf("encode vector row %d: %w", i, err)
		}
	}

	metaData, err := json.Marshal(metaFile{
		EmbeddingDim: dim,
		NextID:       snap.nextID,
		Records:      snap.records,
	})
	if err != nil {
		return fmt.Errorf("encode meta file: %w", err)
	}

	if err := writeFileAtomic(path+indexSuffix, buf.Bytes()); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}
	if err := writeFileAtomic(path+metaSuffix, metaData); err != nil {
		return fmt.Errorf("write meta file: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
