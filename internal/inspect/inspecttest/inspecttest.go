// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package inspecttest fabricates minimal managed executable images for unit
// tests.
//
// The images carry just enough structure for the inspector: a DOS stub, a
// COFF header, a PE32 optional header with a populated CLR data directory,
// one section holding the CLR header, and a metadata root with a runtime
// version string. They are not runnable.
package inspecttest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Machine types used by test images.
const (
	MachineI386  = 0x014c
	MachineAMD64 = 0x8664
)

// CLR header flag bits mirrored here to keep fixtures self-contained.
const (
	FlagILOnly       = 0x00000001
	Flag32BitRequired = 0x00000002
)

// Assembly describes a fake managed image to fabricate.
type Assembly struct {
	// Machine is the COFF machine type. Defaults to MachineAMD64.
	Machine uint16
	// Unmanaged omits the CLR header entirely.
	Unmanaged bool
	// CorFlags holds the CLR header flag bits. Defaults to FlagILOnly.
	CorFlags uint32
	// RuntimeVersion is the metadata root version string.
	// Defaults to "v4.0.30319".
	RuntimeVersion string
}

const (
	imageBase    = 0x00400000
	sectionRVA   = 0x2000
	rawOffset    = 0x200
	corHeaderLen = 72
)

// Write fabricates the image described by a at path.
func Write(path string, a Assembly) error {
	if a.Machine == 0 {
		a.Machine = MachineAMD64
	}
	if a.CorFlags == 0 {
		a.CorFlags = FlagILOnly
	}
	if a.RuntimeVersion == "" {
		a.RuntimeVersion = "v4.0.30319"
	}

	// Section payload: CLR header followed by the metadata root.
	var section bytes.Buffer
	metaRVA := uint32(0)
	if !a.Unmanaged {
		version := a.RuntimeVersion + "\x00"
		for len(version)%4 != 0 {
			version += "\x00"
		}
		metaRVA = sectionRVA + corHeaderLen
		metaSize := uint32(16 + len(version))

		cor := make([]byte, corHeaderLen)
		le := binary.LittleEndian
		le.PutUint32(cor[0:], corHeaderLen) // cb
		le.PutUint16(cor[4:], 2)            // MajorRuntimeVersion
		le.PutUint16(cor[6:], 5)            // MinorRuntimeVersion
		le.PutUint32(cor[8:], metaRVA)
		le.PutUint32(cor[12:], metaSize)
		le.PutUint32(cor[16:], a.CorFlags)
		section.Write(cor)

		meta := make([]byte, 16, 16+len(version))
		le.PutUint32(meta[0:], 0x424A5342) // "BSJB"
		le.PutUint16(meta[4:], 1)
		le.PutUint16(meta[6:], 1)
		le.PutUint32(meta[12:], uint32(len(version)))
		meta = append(meta, version...)
		section.Write(meta)
	} else {
		section.WriteString("\x90\x90\x90\x90")
	}

	var img bytes.Buffer
	le := binary.LittleEndian

	// DOS header: "MZ", e_lfanew at 0x3c pointing to the PE signature.
	dos := make([]byte, 0x80)
	dos[0], dos[1] = 'M', 'Z'
	le.PutUint32(dos[0x3c:], 0x80)
	img.Write(dos)

	img.WriteString("PE\x00\x00")

	// COFF file header.
	coff := make([]byte, 20)
	le.PutUint16(coff[0:], a.Machine)
	le.PutUint16(coff[2:], 1)     // NumberOfSections
	le.PutUint16(coff[16:], 224)  // SizeOfOptionalHeader (PE32)
	le.PutUint16(coff[18:], 0x102) // Characteristics: executable, 32-bit
	img.Write(coff)

	// PE32 optional header with 16 data directories.
	opt := make([]byte, 224)
	le.PutUint16(opt[0:], 0x10b) // PE32 magic
	le.PutUint32(opt[28:], imageBase)
	le.PutUint32(opt[32:], 0x1000)   // SectionAlignment
	le.PutUint32(opt[36:], rawOffset) // FileAlignment
	le.PutUint32(opt[56:], sectionRVA+0x1000) // SizeOfImage
	le.PutUint32(opt[60:], rawOffset)         // SizeOfHeaders
	le.PutUint32(opt[92:], 16)                // NumberOfRvaAndSizes
	if !a.Unmanaged {
		// Data directory 14 is the CLR header.
		le.PutUint32(opt[96+14*8:], sectionRVA)
		le.PutUint32(opt[96+14*8+4:], corHeaderLen)
	}
	img.Write(opt)

	// Single section header.
	sec := make([]byte, 40)
	copy(sec[0:], ".text")
	le.PutUint32(sec[8:], uint32(section.Len()))  // VirtualSize
	le.PutUint32(sec[12:], sectionRVA)            // VirtualAddress
	le.PutUint32(sec[16:], uint32(section.Len())) // SizeOfRawData
	le.PutUint32(sec[20:], rawOffset)             // PointerToRawData
	le.PutUint32(sec[36:], 0x60000020)            // code | execute | read
	img.Write(sec)

	// Pad the headers out to the raw data offset.
	img.Write(make([]byte, rawOffset-img.Len()))
	img.Write(section.Bytes())

	return os.WriteFile(path, img.Bytes(), 0644)
}

// MustWrite is like Write but panics on error, for use in test setup.
func MustWrite(path string, a Assembly) {
	if err := Write(path, a); err != nil {
		panic(fmt.Sprintf("inspecttest: writing %s: %v", path, err))
	}
}

// WriteRuntimeConfig writes a runtimeconfig sidecar for the binary at
// binaryPath declaring the given target framework moniker.
func WriteRuntimeConfig(binaryPath, tfm string) error {
	doc := map[string]interface{}{
		"runtimeOptions": map[string]interface{}{
			"tfm": tfm,
			"framework": map[string]interface{}{
				"name":    "Microsoft.NETCore.App",
				"version": "0.0.0",
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(sidecar(binaryPath, ".runtimeconfig.json"), data, 0644)
}

// WriteDeps writes a dependency manifest sidecar listing the given library
// references as "<name>/<version>" keys.
func WriteDeps(binaryPath string, libs ...string) error {
	entries := map[string]interface{}{}
	for _, lib := range libs {
		key := lib
		if !strings.Contains(key, "/") {
			key += "/1.0.0"
		}
		entries[key] = map[string]string{"type": "package"}
	}
	data, err := json.Marshal(map[string]interface{}{"libraries": entries})
	if err != nil {
		return err
	}
	return os.WriteFile(sidecar(binaryPath, ".deps.json"), data, 0644)
}

func sidecar(binaryPath, suffix string) string {
	if i := strings.LastIndexByte(binaryPath, '.'); i > strings.LastIndexByte(binaryPath, '/') {
		return binaryPath[:i] + suffix
	}
	return binaryPath + suffix
}
