package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// i3-ipc framing: a 6 byte magic, then payload length and message type
// as little-endian uint32s, then the JSON payload.
var magic = [6]byte{'i', '3', '-', 'i', 'p', 'c'}

const headerLen = 14

// Message types shared by i3, sway and scroll.
const (
	MessageRunCommand    uint32 = 0
	MessageGetWorkspaces uint32 = 1
	MessageSubscribe     uint32 = 2
	MessageGetTree       uint32 = 4
)

// Event replies set the high bit of the type field.
const eventFlag uint32 = 1 << 31

// Event types, with the high bit stripped.
const (
	EventWorkspace uint32 = 0
	EventWindow    uint32 = 3
	EventShutdown  uint32 = 6
)

type frame struct {
	Type    uint32
	Payload []byte
}

func (f frame) isEvent() bool {
	return f.Type&eventFlag != 0
}

func (f frame) eventType() uint32 {
	return f.Type &^ eventFlag
}

func writeFrame(w io.Writer, msgType uint32, payload []byte) error {
	buf := make([]byte, headerLen+len(payload))
	copy(buf, magic[:])
	binary.LittleEndian.PutUint32(buf[6:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[10:], msgType)
	copy(buf[headerLen:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (frame, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return frame{}, err
	}
	if [6]byte(header[:6]) != magic {
		return frame{}, fmt.Errorf("ipc: bad magic %q", header[:6])
	}
	length := binary.LittleEndian.Uint32(header[6:10])
	f := frame{Type: binary.LittleEndian.Uint32(header[10:14])}
	if length > 0 {
		f.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return frame{}, err
		}
	}
	return f, nil
}
