package ivf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/klauspost/compress/zstd"
)

// Serialized layout (zstd-compressed):
//
//	magic     [4]byte  "MVIF"
//	version   uint16
//	dim       uint32
//	k         uint32
//	nprobe    uint32
//	count     uint64
//	sinceBuild uint64
//	builtAt   float64 bits
//	centroids k*dim float32 LE
//	nLists    uint32
//	per list: centroid uint32, byteLen uint32, roaring64 portable bytes

var blobMagic = [4]byte{'M', 'V', 'I', 'F'}

const blobVersion uint16 = 1

// ErrInvalidBlob indicates a blob that is not a serialized index, or one
// written by an incompatible version.
type ErrInvalidBlob struct {
	Reason string
}

func (e *ErrInvalidBlob) Error() string {
	return fmt.Sprintf("ivf: invalid index blob: %s", e.Reason)
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// MarshalBinary serializes the index as a zstd-compressed blob.
func (idx *Index) MarshalBinary() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf bytes.Buffer
	buf.Write(blobMagic[:])

	writeU16 := func(v uint16) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	writeU32 := func(v uint32) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	writeU64 := func(v uint64) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	writeU16(blobVersion)
	writeU32(uint32(idx.dim))
	writeU32(uint32(idx.k))
	writeU32(uint32(idx.nprobe))
	writeU64(idx.count)
	writeU64(idx.sinceBuild)
	writeU64(math.Float64bits(idx.builtAt))

	centroidBytes := make([]byte, 4*len(idx.centroids))
	for i, x := range idx.centroids {
		binary.LittleEndian.PutUint32(centroidBytes[i*4:], math.Float32bits(x))
	}
	buf.Write(centroidBytes)

	writeU32(uint32(len(idx.postings)))
	for centroid, bm := range idx.postings {
		writeU32(centroid)
		var lb bytes.Buffer
		if _, err := bm.WriteTo(&lb); err != nil {
			return nil, fmt.Errorf("ivf: serialize postings for centroid %d: %w", centroid, err)
		}
		writeU32(uint32(lb.Len()))
		buf.Write(lb.Bytes())
	}

	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// UnmarshalBinary deserializes an index produced by MarshalBinary.
func UnmarshalBinary(blob []byte) (*Index, error) {
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, &ErrInvalidBlob{Reason: fmt.Sprintf("zstd: %v", err)}
	}

	r := bytes.NewReader(raw)

	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil || magic != blobMagic {
		return nil, &ErrInvalidBlob{Reason: "bad magic"}
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, &ErrInvalidBlob{Reason: "truncated header"}
	}
	if version != blobVersion {
		return nil, &ErrInvalidBlob{Reason: fmt.Sprintf("unsupported version %d", version)}
	}

	var dim, k, nprobe uint32
	var count, sinceBuild, builtAtBits uint64
	for _, v := range []any{&dim, &k, &nprobe, &count, &sinceBuild, &builtAtBits} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, &ErrInvalidBlob{Reason: "truncated header"}
		}
	}
	if dim == 0 || k == 0 {
		return nil, &ErrInvalidBlob{Reason: "zero dimension or k"}
	}

	centroids := make([]float32, int(k)*int(dim))
	centroidBytes := make([]byte, 4*len(centroids))
	if _, err := io.ReadFull(r, centroidBytes); err != nil {
		return nil, &ErrInvalidBlob{Reason: "truncated centroids"}
	}
	for i := range centroids {
		centroids[i] = math.Float32frombits(binary.LittleEndian.Uint32(centroidBytes[i*4:]))
	}

	var nLists uint32
	if err := binary.Read(r, binary.LittleEndian, &nLists); err != nil {
		return nil, &ErrInvalidBlob{Reason: "truncated postings count"}
	}
	if nLists > k {
		return nil, &ErrInvalidBlob{Reason: "more postings lists than centroids"}
	}

	postings := make(map[uint32]*roaring64.Bitmap, nLists)
	for i := uint32(0); i < nLists; i++ {
		var centroid, byteLen uint32
		if err := binary.Read(r, binary.LittleEndian, &centroid); err != nil {
			return nil, &ErrInvalidBlob{Reason: "truncated postings header"}
		}
		if err := binary.Read(r, binary.LittleEndian, &byteLen); err != nil {
			return nil, &ErrInvalidBlob{Reason: "truncated postings header"}
		}
		if centroid >= k {
			return nil, &ErrInvalidBlob{Reason: fmt.Sprintf("centroid %d out of range", centroid)}
		}

		listBytes := make([]byte, byteLen)
		if _, err := io.ReadFull(r, listBytes); err != nil {
			return nil, &ErrInvalidBlob{Reason: "truncated postings list"}
		}
		bm := roaring64.New()
		if _, err := bm.ReadFrom(bytes.NewReader(listBytes)); err != nil {
			return nil, &ErrInvalidBlob{Reason: fmt.Sprintf("postings list %d: %v", centroid, err)}
		}
		postings[centroid] = bm
	}

	return &Index{
		dim:        int(dim),
		k:          int(k),
		nprobe:     int(nprobe),
		centroids:  centroids,
		postings:   postings,
		count:      count,
		sinceBuild: sinceBuild,
		builtAt:    math.Float64frombits(builtAtBits),
	}, nil
}

// BlobKey returns the blob store key for an owner's index. Keys are keyed by
// (dim, K) so an index built with one geometry never masquerades as another.
func BlobKey(owner string, dim, k int) string {
	return fmt.Sprintf("%s/ivf/dim%d-k%d.idx", owner, dim, k)
}

// BlobPrefix returns the key prefix under which an owner's indexes live.
func BlobPrefix(owner string) string {
	return owner + "/ivf/"
}

// ParseBlobKey extracts (dim, k) from a key produced by BlobKey.
func ParseBlobKey(key string) (dim, k int, ok bool) {
	i := strings.LastIndex(key, "/")
	name := key[i+1:]
	if _, err := fmt.Sscanf(name, "dim%d-k%d.idx", &dim, &k); err != nil {
		return 0, 0, false
	}
	return dim, k, dim > 0 && k > 0
}
