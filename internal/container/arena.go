package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	ArenaHeaderSize = 4096
	ArenaMagic      = 0x48535430 // "HST0"
	arenaVersion    = 1

	// minArenaBuffer is the smallest buffer allocated for a new arena.
	minArenaBuffer = 64 << 10
)

var ErrBadArena = errors.New("invalid arena")

// ArenaHeader sits at the start of an .arena file. The file holds two
// equal-sized buffers after the header; only ActiveBuffer is valid.
type ArenaHeader struct {
	Magic        uint32
	Version      uint8
	ActiveBuffer uint8
	Padding      [2]byte
	Sequence     uint64
	Length       uint64 // bytes of container data in the active buffer
}

// ReadArenaHeader reads the header from the start of f.
func ReadArenaHeader(f io.ReaderAt) (*ArenaHeader, error) {
	buf := make([]byte, 24)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadArena, err)
	}
	return &ArenaHeader{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		Version:      buf[4],
		ActiveBuffer: buf[5],
		Sequence:     binary.LittleEndian.Uint64(buf[8:16]),
		Length:       binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// WriteArenaHeader overwrites the header at the start of f.
func WriteArenaHeader(f io.WriterAt, h *ArenaHeader) error {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.ActiveBuffer
	binary.LittleEndian.PutUint64(buf[8:16], h.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], h.Length)
	_, err := f.WriteAt(buf, 0)
	return err
}

// CalculateActiveOffset returns the byte offset of the active buffer.
func (h *ArenaHeader) CalculateActiveOffset(fileSize int64) (int64, error) {
	if h.Magic != ArenaMagic {
		return 0, fmt.Errorf("%w: magic %x", ErrBadArena, h.Magic)
	}
	if h.Version != arenaVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrBadArena, h.Version)
	}
	if h.ActiveBuffer > 1 {
		return 0, fmt.Errorf("%w: active buffer index %d", ErrBadArena, h.ActiveBuffer)
	}
	bufferSize := (fileSize - ArenaHeaderSize) / 2
	if bufferSize <= 0 || int64(h.Length) > bufferSize {
		return 0, fmt.Errorf("%w: size %d", ErrBadArena, fileSize)
	}
	return int64(ArenaHeaderSize) + int64(h.ActiveBuffer)*bufferSize, nil
}

// CreateArena writes a fresh arena at arenaPath holding the container at
// dbPath in buffer 0. Any existing file is replaced.
func CreateArena(dbPath, arenaPath string) error {
	data, err := os.ReadFile(dbPath)
	if err != nil {
		return fmt.Errorf("read container: %w", err)
	}
	bufferSize := int64(minArenaBuffer)
	for bufferSize < int64(len(data)) {
		bufferSize *= 2
	}

	af, err := os.OpenFile(arenaPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create arena: %w", err)
	}
	defer func() { _ = af.Close() }()

	if err := af.Truncate(ArenaHeaderSize + 2*bufferSize); err != nil {
		return fmt.Errorf("size arena: %w", err)
	}
	if _, err := af.WriteAt(data, ArenaHeaderSize); err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	h := &ArenaHeader{Magic: ArenaMagic, Version: arenaVersion, Sequence: 1, Length: uint64(len(data))}
	if err := WriteArenaHeader(af, h); err != nil {
		return fmt.Errorf("write arena header: %w", err)
	}
	return af.Sync()
}

// PackArena copies the container at dbPath into the inactive buffer of
// the arena at arenaPath and flips the header. A missing, invalid or
// undersized arena is recreated.
func PackArena(dbPath, arenaPath string) error {
	data, err := os.ReadFile(dbPath)
	if err != nil {
		return fmt.Errorf("read container: %w", err)
	}

	af, err := os.OpenFile(arenaPath, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return CreateArena(dbPath, arenaPath)
	}
	if err != nil {
		return fmt.Errorf("open arena: %w", err)
	}
	info, err := af.Stat()
	if err != nil {
		_ = af.Close()
		return fmt.Errorf("stat arena: %w", err)
	}
	header, err := ReadArenaHeader(af)
	if err == nil {
		_, err = header.CalculateActiveOffset(info.Size())
	}
	bufferSize := (info.Size() - ArenaHeaderSize) / 2
	if err != nil || int64(len(data)) > bufferSize {
		_ = af.Close()
		return CreateArena(dbPath, arenaPath)
	}
	defer func() { _ = af.Close() }()

	inactive := uint8(1) - header.ActiveBuffer
	offset := int64(ArenaHeaderSize) + int64(inactive)*bufferSize
	if _, err := af.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write inactive buffer: %w", err)
	}
	if rem := bufferSize - int64(len(data)); rem > 0 {
		if _, err := af.WriteAt(make([]byte, rem), offset+int64(len(data))); err != nil {
			return fmt.Errorf("zero-pad inactive buffer: %w", err)
		}
	}

	header.ActiveBuffer = inactive
	header.Sequence++
	header.Length = uint64(len(data))
	if err := WriteArenaHeader(af, header); err != nil {
		return fmt.Errorf("write arena header: %w", err)
	}
	return af.Sync()
}

// ExtractActiveDB copies the active container out of the arena into a
// temp file and returns its path. The caller removes the file.
func ExtractActiveDB(arenaPath string) (string, error) {
	f, err := os.Open(arenaPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	header, err := ReadArenaHeader(f)
	if err != nil {
		return "", err
	}
	offset, err := header.CalculateActiveOffset(info.Size())
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "hstore-arena-*.db")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		_ = tmp.Close()
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, io.NewSectionReader(f, offset, int64(header.Length))); err != nil {
		return "", fmt.Errorf("copy active container: %w", err)
	}
	cleanup = false
	return tmpPath, nil
}
