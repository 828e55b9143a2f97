// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package spvpack is an lz4 backed archive for compiled shaders.
// Every file is compressed on its own and the index is stored up front,
// so a memory mapped archive knows where each shader lives before any
// of them is read. Archives are written once with a Builder and can be
// read from concurrently.
package spvpack

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
)

// package errors
var (
	ErrFileFormat = errors.New("corrupted or not a spvpack archive")
	ErrDuplicate  = errors.New("file already added to the archive")
)

// Sizes of the fixed part of the file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = binary.MaxVarintLen64
)

var magic = [MagicLength]byte{'S', 'P', 'V', '\x00'}

// IndexEntry is info for one file in the file index.
// Offset is relative to the end of the header.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header of an archive.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

func int64ToBinary(num int64) []byte {
	numBytes := make([]byte, HeaderSizeNumberLength)
	binary.PutVarint(numBytes, num)
	return numBytes
}

func binaryToInt64(bts []byte) (int64, error) {
	return binary.ReadVarint(bytes.NewReader(bts))
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	if err := gob.NewEncoder(&encoded).Encode(data); err != nil {
		return nil, err
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	return gob.NewDecoder(bytes.NewReader(bts)).Decode(obj)
}
