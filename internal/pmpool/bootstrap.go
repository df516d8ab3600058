package pmpool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	atomicfile "github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"github.com/pmkv/ssbtree/internal/pnode"
)

// ErrCorrupt is returned when the root header's CRC does not match its
// contents.
var ErrCorrupt = errors.New("pmpool: root header corrupt")

// ErrIncompatible is returned when the file is not a recognized pool file.
var ErrIncompatible = errors.New("pmpool: not a pool file or unsupported version")

// zeroReader yields an endless stream of zero bytes, used to pad a freshly
// created pool file out to its full size in one atomic write.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// Create installs a brand-new pool file at path: a zeroed arena of the
// requested size, a head/tail sentinel pair, and an empty leaf as the
// initial root, following the original design's pmdk_constructor (install
// the allocation class and sentinel nodes) as distinct from reopening an
// existing pool (see Open).
func Create(path string, poolSizeBytes int64, lnum, rnum uint32) (*Pool, error) {
	if poolSizeBytes <= headerSize {
		return nil, fmt.Errorf("pmpool: pool size must exceed header size (%d bytes)", headerSize)
	}

	capacity := uint64(poolSizeBytes-headerSize) / uint64(pnode.Size)
	if capacity < 3 {
		return nil, errors.New("pmpool: pool too small to hold head, tail and root nodes")
	}

	total := int64(headerSize) + int64(capacity)*int64(pnode.Size)

	h := rootHeader{
		Version:   fileVersion,
		Lnum:      lnum,
		Rnum:      rnum,
		Capacity:  capacity,
		NextAlloc: headerSize,
		FreeHead:  NoOffset,
	}
	headerBuf := encodeRootHeader(&h)

	body := io.MultiReader(bytes.NewReader(headerBuf), io.LimitReader(zeroReader{}, total-int64(len(headerBuf))))
	if err := atomicfile.WriteFile(path, body); err != nil {
		return nil, fmt.Errorf("pmpool: create %s: %w", path, err)
	}

	p, err := openMapped(path)
	if err != nil {
		return nil, err
	}

	tail, err := p.AllocNode()
	if err != nil {
		return nil, err
	}
	if err := tail.Init(false, 0, pnode.MaxKey); err != nil {
		return nil, err
	}

	rootLeaf, err := p.AllocNode()
	if err != nil {
		return nil, err
	}
	if err := rootLeaf.Init(true, uint64(tail.Offset()), pnode.MaxKey); err != nil {
		return nil, err
	}

	head, err := p.AllocNode()
	if err != nil {
		return nil, err
	}
	if err := head.Init(false, uint64(tail.Offset()), pnode.MaxKey); err != nil {
		return nil, err
	}

	hh := head.LoadHeader()
	hh, err = head.UpKey(hh, pnode.MinKey, uint64(rootLeaf.Offset()))
	if err != nil {
		return nil, err
	}
	head.StoreHeader(hh)
	if err := head.FlushHeader(true); err != nil {
		return nil, err
	}

	p.tailOff.Store(uint64(tail.Offset()))
	if err := p.PublishRoot(uint64(head.Offset()), uint64(rootLeaf.Offset())); err != nil {
		return nil, err
	}

	return p, nil
}

// Open reopens an existing pool file. No journal replay occurs: the root
// header's CRC is revalidated and the tree is already consistent, per the
// design's crash-recovery stance (see root.go for sentinel re-linking).
func Open(path string) (*Pool, error) {
	p, err := openMapped(path)
	if err != nil {
		return nil, err
	}

	buf := p.data[:headerSize]
	if !validMagic(buf) || decodeRootHeader(buf).Version != fileVersion {
		return nil, ErrIncompatible
	}
	if !validateRootCRC(buf) {
		return nil, ErrCorrupt
	}

	return p, nil
}

func openMapped(path string) (*Pool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pmpool: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pmpool: mmap %s: %w", path, err)
	}

	hdr := decodeRootHeader(data[:headerSize])

	p := newPool(data, headerSize, hdr.Capacity)
	p.file = f
	p.lnum = hdr.Lnum
	p.rnum = hdr.Rnum
	p.nextAlloc.Store(hdr.NextAlloc)
	p.freeHead.Store(hdr.FreeHead)
	p.headOff.Store(hdr.HeadOff)
	p.tailOff.Store(hdr.TailOff)
	p.rootOff.Store(hdr.RootOff)
	p.generation.Store(hdr.Generation)

	return p, nil
}

// Close unmaps and closes the backing file.
func (p *Pool) Close() error {
	if err := unix.Munmap(p.data); err != nil {
		return err
	}
	return p.file.Close()
}
