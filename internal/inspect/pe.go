// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package inspect

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// COR header flag bits.
const (
	corFlagILOnly       = 0x00000001
	corFlag32BitRequired = 0x00000002
)

// comDescriptorIndex is the data directory slot of the CLR header.
const comDescriptorIndex = 14

// metadataSignature marks the start of the CLR metadata root ("BSJB").
const metadataSignature = 0x424A5342

// peInfo is what the engine needs from a portable executable image.
type peInfo struct {
	// Managed reports whether the image carries a CLR header.
	Managed bool
	// ILOnly is the ILONLY bit of the CLR header flags.
	ILOnly bool
	// Requires32Bit is true for x86 images and for managed images with the
	// 32BITREQUIRED flag set.
	Requires32Bit bool
	// RuntimeVersion is the version string of the CLR metadata root,
	// e.g. "v4.0.30319". Empty for unmanaged images.
	RuntimeVersion string
}

// readPE extracts peInfo from the image at path. Returns BadBinary if the
// file is not a valid portable executable.
func readPE(path string) (*peInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.Wrapf(engineerr.BadBinary, err, "cannot open %s", path)
	}
	defer f.Close()

	img, err := pe.NewFile(f)
	if err != nil {
		return nil, engineerr.Wrapf(engineerr.BadBinary, err, "%s is not a valid executable image", path)
	}
	defer img.Close()

	info := &peInfo{
		Requires32Bit: img.Machine == pe.IMAGE_FILE_MACHINE_I386,
	}

	dirs, err := dataDirectories(img)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.BadBinary, err, path)
	}
	if len(dirs) <= comDescriptorIndex || dirs[comDescriptorIndex].VirtualAddress == 0 {
		return info, nil // unmanaged image
	}

	cor, err := readAtRVA(img, f, dirs[comDescriptorIndex].VirtualAddress, dirs[comDescriptorIndex].Size)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.BadBinary, err, "cannot read CLR header")
	}
	if len(cor) < 24 {
		return nil, engineerr.New(engineerr.BadBinary, "truncated CLR header")
	}

	info.Managed = true
	metaRVA := binary.LittleEndian.Uint32(cor[8:12])
	metaSize := binary.LittleEndian.Uint32(cor[12:16])
	flags := binary.LittleEndian.Uint32(cor[16:20])
	info.ILOnly = flags&corFlagILOnly != 0
	if flags&corFlag32BitRequired != 0 {
		info.Requires32Bit = true
	}

	meta, err := readAtRVA(img, f, metaRVA, metaSize)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.BadBinary, err, "cannot read CLR metadata")
	}
	version, err := metadataVersion(meta)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.BadBinary, err, "cannot parse CLR metadata")
	}
	info.RuntimeVersion = version
	return info, nil
}

// dataDirectories returns the image's data directory table for either
// optional header format.
func dataDirectories(img *pe.File) ([]pe.DataDirectory, error) {
	switch oh := img.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return oh.DataDirectory[:], nil
	case *pe.OptionalHeader64:
		return oh.DataDirectory[:], nil
	default:
		return nil, errors.New("image has no optional header")
	}
}

// readAtRVA reads size bytes at the given relative virtual address by
// mapping it through the section table.
func readAtRVA(img *pe.File, f *os.File, rva, size uint32) ([]byte, error) {
	for _, s := range img.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.Size {
			off := int64(s.Offset) + int64(rva-s.VirtualAddress)
			buf := make([]byte, size)
			if _, err := f.ReadAt(buf, off); err != nil {
				return nil, errors.Wrapf(err, "short read at RVA %#x", rva)
			}
			return buf, nil
		}
	}
	return nil, errors.Errorf("RVA %#x is outside all sections", rva)
}

// metadataVersion extracts the runtime version string from a CLR metadata
// root.
func metadataVersion(meta []byte) (string, error) {
	if len(meta) < 16 {
		return "", errors.New("truncated metadata root")
	}
	if binary.LittleEndian.Uint32(meta[0:4]) != metadataSignature {
		return "", errors.New("bad metadata signature")
	}
	length := binary.LittleEndian.Uint32(meta[12:16])
	if length == 0 || int(16+length) > len(meta) {
		return "", errors.New("bad metadata version length")
	}
	version := meta[16 : 16+length]
	if i := bytes.IndexByte(version, 0); i >= 0 {
		version = version[:i]
	}
	return string(version), nil
}
