package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Segment files (.spdx) hold a fixed header, the postings of every term,
// a JSON dictionary, the stored fields and a footer with a checksum over
// dictionary and stored fields. Deleted docs live next to them in .liv
// files as serialized roaring bitmaps, and segments.json lists the
// committed segments.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32

	manifestName = "segments.json"
)

// DictEntry maps a term to its postings offset, length and doc frequency.
type DictEntry struct {
	Term       []byte `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

type fileField struct {
	Name string `json:"name"`
	fieldData
	Entries []DictEntry `json:"entries"`
}

type manifest struct {
	Version  int64    `json:"version"`
	Counter  int64    `json:"counter"`
	Segments []string `json:"segments"`
	SavedAt  int64    `json:"savedAt"`
}

func (w *Writer) persistLocked() error {
	dir := w.cfg.DataDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	keep := map[string]struct{}{manifestName: {}}
	m := manifest{Version: w.version, Counter: w.counter, SavedAt: time.Now().Unix()}
	for _, seg := range w.segments {
		name := seg.Name()
		m.Segments = append(m.Segments, name)
		keep[name+".spdx"] = struct{}{}
		if !seg.core.persisted.Load() {
			if err := writeSegmentFile(filepath.Join(dir, name+".spdx"), seg.core); err != nil {
				return fmt.Errorf("writing segment %s: %w", name, err)
			}
			seg.core.persisted.Store(true)
		}
		if seg.HasDeletions() {
			keep[name+".liv"] = struct{}{}
			if err := writeLiveDocs(filepath.Join(dir, name+".liv"), seg.deleted); err != nil {
				return fmt.Errorf("writing deletions of %s: %w", name, err)
			}
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, manifestName), data); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading index directory: %w", err)
	}
	for _, entry := range entries {
		if _, ok := keep[entry.Name()]; ok || entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".spdx") || strings.HasSuffix(entry.Name(), ".liv") {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				w.logger.Warn("removing stale index file", "file", entry.Name(), "error", err)
			}
		}
	}
	w.logger.Info("index committed", "segments", len(m.Segments), "version", m.Version)
	return nil
}

func (w *Writer) loadCommitted() error {
	dir := w.cfg.DataDir
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}
	for _, name := range m.Segments {
		core, err := readSegmentFile(filepath.Join(dir, name+".spdx"), name)
		if err != nil {
			return fmt.Errorf("loading segment %s: %w", name, err)
		}
		core.persisted.Store(true)
		seg := &Segment{core: core}
		deleted, err := readLiveDocs(filepath.Join(dir, name+".liv"))
		if err != nil {
			return fmt.Errorf("loading deletions of %s: %w", name, err)
		}
		if deleted != nil {
			seg.deleted = deleted
		}
		w.segments = append(w.segments, seg)
		w.logger.Info("loaded existing segment", "segment", name, "docs", seg.NumDocs())
	}
	w.version = m.Version
	w.counter = m.Counter
	w.logger.Info("segment recovery complete", "segments_loaded", len(w.segments))
	return nil
}

func writeSegmentFile(path string, core *SegmentCore) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(core.fields)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(core.maxDoc))
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	postStart := int64(HeaderSize)
	offset := int64(0)
	dict := make([]fileField, 0, len(core.fields))
	for _, name := range core.FieldNames() {
		fd := core.fields[name]
		ff := fileField{Name: name, fieldData: *fd, Entries: make([]DictEntry, 0, len(fd.Terms))}
		for i, term := range fd.Terms {
			data, err := json.Marshal(fd.Lists[i])
			if err != nil {
				return fmt.Errorf("marshaling postings for %s:%q: %w", name, term, err)
			}
			if _, err := f.Write(data); err != nil {
				return fmt.Errorf("writing postings for %s:%q: %w", name, term, err)
			}
			ff.Entries = append(ff.Entries, DictEntry{
				Term:       []byte(term),
				PostOffset: offset,
				PostLen:    len(data),
				DocFreq:    len(fd.Lists[i].Docs),
			})
			offset += int64(len(data))
		}
		dict = append(dict, ff)
	}

	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	storedData, err := json.Marshal(core.stored)
	if err != nil {
		return fmt.Errorf("marshaling stored fields: %w", err)
	}
	dictStart := postStart + offset
	storedStart := dictStart + int64(len(dictData))
	if _, err := f.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}
	if _, err := f.Write(storedData); err != nil {
		return fmt.Errorf("writing stored fields: %w", err)
	}

	crc := crc32.NewIEEE()
	crc.Write(dictData)
	crc.Write(storedData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], uint32(core.maxDoc))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(time.Now().Unix()))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint64(header[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(header[32:40], uint64(postStart))
	binary.LittleEndian.PutUint64(header[40:48], uint64(offset))
	binary.LittleEndian.PutUint64(header[48:56], uint64(storedStart))
	binary.LittleEndian.PutUint64(header[56:64], uint64(len(storedData)))
	if _, err := f.WriteAt(header, 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

func readSegmentFile(path, name string) (*SegmentCore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading segment file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("invalid segment file: %d bytes", len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("unsupported segment format version %d", v)
	}
	maxDoc := int(binary.LittleEndian.Uint32(data[12:16]))
	dictStart := int64(binary.LittleEndian.Uint64(data[16:24]))
	dictSize := int64(binary.LittleEndian.Uint64(data[24:32]))
	postStart := int64(binary.LittleEndian.Uint64(data[32:40]))
	storedStart := int64(binary.LittleEndian.Uint64(data[48:56]))
	storedSize := int64(binary.LittleEndian.Uint64(data[56:64]))
	if storedStart+storedSize+int64(FooterSize) > int64(len(data)) {
		return nil, fmt.Errorf("invalid segment file: truncated")
	}

	dictData := data[dictStart : dictStart+dictSize]
	storedData := data[storedStart : storedStart+storedSize]
	crc := crc32.NewIEEE()
	crc.Write(dictData)
	crc.Write(storedData)
	footer := data[storedStart+storedSize:]
	if want := binary.LittleEndian.Uint32(footer[0:4]); crc.Sum32() != want {
		return nil, fmt.Errorf("segment checksum mismatch: got %x want %x", crc.Sum32(), want)
	}

	var dict []fileField
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	var stored []StoredDocument
	if err := json.Unmarshal(storedData, &stored); err != nil {
		return nil, fmt.Errorf("parsing stored fields: %w", err)
	}

	fields := make(map[string]*fieldData, len(dict))
	for _, ff := range dict {
		fd := ff.fieldData
		fd.Terms = make([]string, len(ff.Entries))
		fd.Lists = make([]*postingList, len(ff.Entries))
		for i, e := range ff.Entries {
			start := postStart + e.PostOffset
			var pl postingList
			if err := json.Unmarshal(data[start:start+int64(e.PostLen)], &pl); err != nil {
				return nil, fmt.Errorf("parsing postings for %s:%q: %w", ff.Name, e.Term, err)
			}
			fd.Terms[i] = string(e.Term)
			fd.Lists[i] = &pl
		}
		fields[ff.Name] = &fd
	}
	return newSegmentCore(name, maxDoc, fields, stored), nil
}

func writeLiveDocs(path string, deleted *roaring.Bitmap) error {
	data, err := deleted.ToBytes()
	if err != nil {
		return fmt.Errorf("serializing deleted docs: %w", err)
	}
	return writeAtomic(path, data)
}

func readLiveDocs(path string) (*roaring.Bitmap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decoding deleted docs: %w", err)
	}
	return bm, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}
