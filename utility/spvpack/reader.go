// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package spvpack

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4"
	"golang.org/x/exp/mmap"
)

// Open reads the index of the archive in r. It checks that the
// data is actually an archive and returns ErrFileFormat when not.
func Open(r io.ReaderAt) (*Archive, error) {
	fixed := make([]byte, MagicLength+HeaderSizeNumberLength)
	if _, err := io.ReadFull(io.NewSectionReader(r, 0, int64(len(fixed))), fixed); err != nil {
		return nil, ErrFileFormat
	}
	if !bytes.Equal(fixed[:MagicLength], magic[:]) {
		return nil, ErrFileFormat
	}

	headerSize, err := binaryToInt64(fixed[MagicLength:])
	if err != nil || headerSize <= 0 {
		return nil, ErrFileFormat
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(r, int64(len(fixed)), headerSize), headerBytes); err != nil {
		return nil, ErrFileFormat
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileFormat, err)
	}

	ar := &Archive{
		reader:     r,
		header:     header,
		dataOffset: int64(len(fixed)) + headerSize,
		entries:    make(map[string]IndexEntry, len(header.Index)),
	}
	for _, e := range header.Index {
		ar.entries[e.Name] = e
	}
	return ar, nil
}

// OpenFile memory maps the archive at path
func OpenFile(path string) (*Archive, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	ar, err := Open(r)
	if err != nil {
		r.Close()
		return nil, err
	}
	ar.closer = r
	return ar, nil
}

// Archive provides concurrent reads of the files in an archive.
// It satisfies the renderer's shader source through Find.
type Archive struct {
	reader     io.ReaderAt
	closer     io.Closer
	header     Header
	dataOffset int64
	entries    map[string]IndexEntry
}

// Header returns the archive header including its index
func (a *Archive) Header() Header {
	return a.header
}

// Names lists the stored files in the order they were added
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.header.Index))
	for _, e := range a.header.Index {
		names = append(names, e.Name)
	}
	return names
}

// Open returns a decompressing reader for the file with the given name
func (a *Archive) Open(name string) (io.Reader, error) {
	e, ok := a.entries[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	section := io.NewSectionReader(a.reader, a.dataOffset+e.Offset, e.CompressedSize)
	return lz4.NewReader(section), nil
}

// Find returns the entire decompressed contents of a file
func (a *Archive) Find(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	size := a.entries[name].Size
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFileFormat, name, err)
	}
	return data, nil
}

// Close releases the mapping of an archive opened with OpenFile
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
