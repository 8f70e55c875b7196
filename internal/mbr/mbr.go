// Copyright 2016 Mender Software AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

// Package mbr decodes and encodes a classic DOS master boot record: the
// 512-byte sector with a 64-byte partition table describing up to four
// primary partitions. This implementation is intentionally limited to
// what require-partition-offset needs to read and what a "write partition
// table" task needs to write, using stdlib encoding/binary -- no
// third-party binary-struct library appears anywhere in the reference
// corpus (mendersoftware/mender decodes its own on-disk structures, where
// it needs to at all, with manual byte slicing rather than a struct-tag
// library), so there is nothing to import here instead.
package mbr

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// SectorSize is the size of one disk sector, and of the MBR itself.
	SectorSize = 512

	// BootSignatureOffset is where the 0x55 0xAA boot signature lives.
	BootSignatureOffset = 510

	partitionTableOffset = 446
	partitionEntrySize   = 16
	// NumPartitions is the number of primary partition slots in a classic
	// MBR.
	NumPartitions = 4
)

var bootSignature = [2]byte{0x55, 0xAA}

// Partition is one of the four primary partition table entries.
type Partition struct {
	BootFlag byte // 0x80 = bootable, 0x00 = not
	Type     byte

	// BlockOffset and BlockCount are in 512-byte sectors (the LBA start
	// and sector count fields of the raw partition entry).
	BlockOffset uint32
	BlockCount  uint32
}

// Decode parses a 512-byte MBR sector into its four partition entries.
func Decode(sector []byte) ([NumPartitions]Partition, error) {
	var out [NumPartitions]Partition

	if len(sector) < SectorSize {
		return out, errors.Errorf("mbr: sector too short: got %d bytes, need %d", len(sector), SectorSize)
	}

	if sector[BootSignatureOffset] != bootSignature[0] || sector[BootSignatureOffset+1] != bootSignature[1] {
		return out, errors.New("mbr: missing boot signature")
	}

	for i := 0; i < NumPartitions; i++ {
		entry := sector[partitionTableOffset+i*partitionEntrySize:]
		out[i] = Partition{
			BootFlag:    entry[0],
			Type:        entry[4],
			BlockOffset: binary.LittleEndian.Uint32(entry[8:12]),
			BlockCount:  binary.LittleEndian.Uint32(entry[12:16]),
		}
	}

	return out, nil
}

// Encode serializes partitions into a fresh 512-byte MBR sector. CHS
// geometry fields are zeroed; only the LBA fields that
// require-partition-offset and typical bootloaders care about are
// populated.
func Encode(partitions [NumPartitions]Partition) []byte {
	sector := make([]byte, SectorSize)

	for i, p := range partitions {
		entry := sector[partitionTableOffset+i*partitionEntrySize:]
		entry[0] = p.BootFlag
		entry[4] = p.Type
		binary.LittleEndian.PutUint32(entry[8:12], p.BlockOffset)
		binary.LittleEndian.PutUint32(entry[12:16], p.BlockCount)
	}

	sector[BootSignatureOffset] = bootSignature[0]
	sector[BootSignatureOffset+1] = bootSignature[1]

	return sector
}
