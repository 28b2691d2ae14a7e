// Copyright (c) the wifisd authors
// Licensed under the MIT license

package proto

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestMarshalReadRequest(t *testing.T) {
	req := ReadRequest{
		LBA:      0,
		Count:    1,
		Username: "admin",
		Password: "admin",
		TID:      93,
	}
	b := req.Marshal()

	if len(b) != 52 {
		t.Fatalf("request is %d bytes, want 52", len(b))
	}
	if string(b[:6]) != "FC1307" {
		t.Errorf("magic = %q", b[:6])
	}
	if b[6] != DirToCard || b[7] != CmdReadData {
		t.Errorf("direction/cmd = %d/%d", b[6], b[7])
	}
	if got := binary.BigEndian.Uint32(b[8:]); got != 0 {
		t.Errorf("lba = %d", got)
	}
	if got := binary.BigEndian.Uint16(b[12:]); got != 1 {
		t.Errorf("count = %d", got)
	}
	if b[14] != 5 || b[15] != 5 {
		t.Errorf("credential lengths = %d/%d", b[14], b[15])
	}
	wantUser := append([]byte("admin"), make([]byte, 11)...)
	if !bytes.Equal(b[16:32], wantUser) {
		t.Errorf("username field = %q", b[16:32])
	}
	if !bytes.Equal(b[32:48], wantUser) {
		t.Errorf("password field = %q", b[32:48])
	}
	if got := binary.BigEndian.Uint32(b[48:]); got != 93 {
		t.Errorf("tid = %d", got)
	}
}

func TestHeader(t *testing.T) {
	b := ReadRequest{Count: 1}.Marshal()
	direction, cmd, err := Header(b)
	if err != nil {
		t.Fatal(err)
	}
	if direction != DirToCard || cmd != CmdReadData {
		t.Errorf("direction/cmd = %d/%d", direction, cmd)
	}

	if _, _, err := Header([]byte("FC13")); err != ErrShortPacket {
		t.Errorf("short packet error = %v", err)
	}
	if _, _, err := Header([]byte("XC130712")); err != ErrBadMagic {
		t.Errorf("bad magic error = %v", err)
	}
}

func TestParseReadResponse(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 512)

	b := make([]byte, 24+len(payload))
	copy(b, "FC1307")
	b[6] = DirFromCard
	b[7] = CmdReadData
	binary.BigEndian.PutUint32(b[8:], 2048)
	binary.BigEndian.PutUint16(b[12:], 3)
	binary.BigEndian.PutUint16(b[14:], 0x18)
	binary.BigEndian.PutUint16(b[16:], uint16(len(payload)))
	binary.BigEndian.PutUint32(b[18:], 97)
	copy(b[24:], payload)

	resp, err := ParseReadResponse(b)
	if err != nil {
		t.Fatal(err)
	}
	if resp.LBA != 2048 || resp.Offset != 3 || resp.Flags != 0x18 || resp.TID != 97 {
		t.Errorf("header fields = %+v", resp)
	}
	if !bytes.Equal(resp.Data, payload) {
		t.Errorf("payload mismatch, %d bytes", len(resp.Data))
	}

	// Claimed payload running past the datagram end
	binary.BigEndian.PutUint16(b[16:], uint16(len(payload)+1))
	if _, err := ParseReadResponse(b); err == nil {
		t.Error("oversized nBytes accepted")
	}

	if _, err := ParseReadResponse(b[:20]); err == nil {
		t.Error("truncated response accepted")
	}
}
