package fixture

import (
	_ "embed"
	"encoding/binary"
	"fmt"
)

// Ogg Vorbis stream of one second of a mono 44100Hz tone. It comes from
// the github.com/jfreymuth/oggvorbis test data.
//
//go:embed testdata/mono.ogg
var mono []byte

const (
	oggPageHeaderSize = 27
	oggFirstPage      = 0x02
)

var oggCRC = func() (table [256]uint32) {
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

// Vorbis returns a mono 44100Hz Ogg Vorbis stream which comment header
// carries provided "KEY=value" comments.
func Vorbis(comments ...string) []byte {
	headers, audio := splitHeaders(mono)
	serial := binary.LittleEndian.Uint32(mono[14:])
	out := oggPage(oggFirstPage, serial, 0, headers[0])
	out = append(out, oggPage(0, serial, 1, commentHeader(comments), headers[2])...)
	return append(out, audio...)
}

// splitHeaders returns three header packets and the pages that follow
// them. Headers must end on a page boundary.
func splitHeaders(b []byte) ([][]byte, []byte) {
	var (
		packets [][]byte
		packet  []byte
		offset  int
	)
	for len(packets) < 3 {
		if len(b[offset:]) < oggPageHeaderSize || string(b[offset:offset+4]) != "OggS" {
			panic(fmt.Sprintf("fixture: no ogg page at %d", offset))
		}
		segments := int(b[offset+26])
		table := b[offset+oggPageHeaderSize : offset+oggPageHeaderSize+segments]
		body := offset + oggPageHeaderSize + segments
		for _, s := range table {
			packet = append(packet, b[body:body+int(s)]...)
			body += int(s)
			if s < 0xFF {
				packets = append(packets, packet)
				packet = nil
			}
		}
		offset = body
	}
	if len(packets) != 3 || packet != nil {
		panic("fixture: vorbis headers don't end on a page boundary")
	}
	return packets, b[offset:]
}

func commentHeader(comments []string) []byte {
	const vendor = "stream"
	b := append([]byte{3}, "vorbis"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(vendor)))
	b = append(b, vendor...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(comments)))
	for _, c := range comments {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(c)))
		b = append(b, c...)
	}
	return append(b, 1)
}

// oggPage builds a page with zero granule position. Packets must fit into
// 255 lacing values.
func oggPage(flags byte, serial, sequence uint32, packets ...[]byte) []byte {
	var table, body []byte
	for _, p := range packets {
		for n := len(p); ; n -= 0xFF {
			if n < 0xFF {
				table = append(table, byte(n))
				break
			}
			table = append(table, 0xFF)
		}
		body = append(body, p...)
	}
	if len(table) > 0xFF {
		panic("fixture: ogg page too long")
	}
	b := append([]byte("OggS"), 0, flags)
	b = binary.LittleEndian.AppendUint64(b, 0)
	b = binary.LittleEndian.AppendUint32(b, serial)
	b = binary.LittleEndian.AppendUint32(b, sequence)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, byte(len(table)))
	b = append(b, table...)
	b = append(b, body...)

	var crc uint32
	for _, v := range b {
		crc = crc<<8 ^ oggCRC[byte(crc>>24)^v]
	}
	binary.LittleEndian.PutUint32(b[22:], crc)
	return b
}
