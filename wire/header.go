// Package wire implements the legacy BeeMsg binary framing described in
// §4.B: a fixed header followed by a type-specific little-endian payload.
// Decoding is total and validating — any malformed input yields a Malformed
// error rather than a panic, grounded on the teacher's binary key encoding
// style in master/cluster/storage.go (encodeNodeKey's binary.PutUint32),
// generalized here from big-endian sort keys to little-endian wire ints.
package wire

import (
	"encoding/binary"
	"net"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/util"
)

// HeaderSize is the fixed length of every BeeMsg header in bytes:
// length(8) + feature flags(8) + msg type(2) + reserved(6) + auth hash(8).
const HeaderSize = 32

// MaxFrameSize bounds a single BeeMsg frame to guard against a hostile or
// corrupt peer claiming an unbounded length.
const MaxFrameSize = 64 * 1024 * 1024

// MsgType identifies the payload layout that follows the header.
type MsgType uint16

const (
	MsgHeartbeat             MsgType = 1
	MsgRegisterNode          MsgType = 2
	MsgRegisterNodeResp      MsgType = 3
	MsgRegisterTarget        MsgType = 4
	MsgRegisterTargetResp    MsgType = 5
	MsgGetNodes              MsgType = 6
	MsgGetNodesResp          MsgType = 7
	MsgGetTargetMappings     MsgType = 8
	MsgGetTargetMappingsResp MsgType = 9
	MsgGetStoragePools       MsgType = 10
	MsgGetStoragePoolsResp   MsgType = 11
	MsgGetMirrorBuddyGroups     MsgType = 12
	MsgGetMirrorBuddyGroupsResp MsgType = 13
	MsgSetCapacityPool       MsgType = 14
	MsgSetTargetConsistency  MsgType = 15
	MsgGetQuotaInfo          MsgType = 16
	MsgGetQuotaInfoResp      MsgType = 17
	MsgSetExceededQuota      MsgType = 18
	MsgRemoveNode            MsgType = 19
	MsgRemoveNodeResp        MsgType = 20
)

func (t MsgType) String() string {
	switch t {
	case MsgHeartbeat:
		return "Heartbeat"
	case MsgRegisterNode:
		return "RegisterNode"
	case MsgRegisterNodeResp:
		return "RegisterNodeResp"
	case MsgRegisterTarget:
		return "RegisterTarget"
	case MsgRegisterTargetResp:
		return "RegisterTargetResp"
	case MsgGetNodes:
		return "GetNodes"
	case MsgGetNodesResp:
		return "GetNodesResp"
	case MsgGetTargetMappings:
		return "GetTargetMappings"
	case MsgGetTargetMappingsResp:
		return "GetTargetMappingsResp"
	case MsgGetStoragePools:
		return "GetStoragePools"
	case MsgGetStoragePoolsResp:
		return "GetStoragePoolsResp"
	case MsgGetMirrorBuddyGroups:
		return "GetMirrorBuddyGroups"
	case MsgGetMirrorBuddyGroupsResp:
		return "GetMirrorBuddyGroupsResp"
	case MsgSetCapacityPool:
		return "SetCapacityPool"
	case MsgSetTargetConsistency:
		return "SetTargetConsistency"
	case MsgGetQuotaInfo:
		return "GetQuotaInfo"
	case MsgGetQuotaInfoResp:
		return "GetQuotaInfoResp"
	case MsgSetExceededQuota:
		return "SetExceededQuota"
	case MsgRemoveNode:
		return "RemoveNode"
	case MsgRemoveNodeResp:
		return "RemoveNodeResp"
	default:
		return "Unknown"
	}
}

// Header is the fixed framing every BeeMsg carries. Length includes the
// header itself, matching the wire convention described in §4.B.
type Header struct {
	Length       uint64
	FeatureFlags uint64
	MsgType      MsgType
	AuthHash     uint64 // truncated SHA-256 of the pre-shared secret, 0 if auth disabled
}

func (h *Header) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], h.Length)
	binary.LittleEndian.PutUint64(buf[8:16], h.FeatureFlags)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(h.MsgType))
	// buf[18:24] reserved, left zero
	binary.LittleEndian.PutUint64(buf[24:32], h.AuthHash)
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errors.New(errors.KindMalformed, "wire.decodeHeader", "frame shorter than header")
	}
	h := Header{
		Length:       binary.LittleEndian.Uint64(buf[0:8]),
		FeatureFlags: binary.LittleEndian.Uint64(buf[8:16]),
		MsgType:      MsgType(binary.LittleEndian.Uint16(buf[16:18])),
		AuthHash:     binary.LittleEndian.Uint64(buf[24:32]),
	}
	if h.Length < HeaderSize || h.Length > MaxFrameSize {
		return Header{}, errors.New(errors.KindMalformed, "wire.decodeHeader", "illegal frame length")
	}
	return h, nil
}

// PeekLength reads just the length field out of a raw header buffer, for
// callers streaming a frame off a TCP connection who must learn how many
// more bytes to read before the full frame is available to DecodeFrame.
func PeekLength(header []byte) (uint64, error) {
	if len(header) < HeaderSize {
		return 0, errors.New(errors.KindMalformed, "wire.PeekLength", "header shorter than HeaderSize")
	}
	length := binary.LittleEndian.Uint64(header[0:8])
	if length < HeaderSize || length > MaxFrameSize {
		return 0, errors.New(errors.KindMalformed, "wire.PeekLength", "illegal frame length")
	}
	return length, nil
}

// EncodeFrame prepends the header to payload, producing a complete frame
// ready to write to a UDP datagram or a TCP stream. The returned slice comes
// out of a pooled allocator (util.GetBuffer); callers done writing it should
// pass it to ReleaseFrame instead of letting it escape to the GC.
func EncodeFrame(msgType MsgType, featureFlags, authHash uint64, payload []byte) []byte {
	h := Header{
		Length:       uint64(HeaderSize + len(payload)),
		FeatureFlags: featureFlags,
		MsgType:      msgType,
		AuthHash:     authHash,
	}
	buf := util.GetBuffer(HeaderSize + len(payload))
	h.encode(buf)
	copy(buf[HeaderSize:], payload)
	return buf
}

// ReleaseFrame returns a frame produced by EncodeFrame to the pool. Only
// call it once the frame has been fully written out; the underlying array
// may be handed to a different caller immediately afterward.
func ReleaseFrame(frame []byte) {
	util.PutBuffer(frame)
}

// DecodeFrame splits a raw frame into its header and payload, validating
// that the claimed length matches what was actually received.
func DecodeFrame(raw []byte) (Header, []byte, error) {
	h, err := decodeHeader(raw)
	if err != nil {
		return Header{}, nil, err
	}
	if uint64(len(raw)) != h.Length {
		return Header{}, nil, errors.New(errors.KindMalformed, "wire.DecodeFrame", "frame length does not match header")
	}
	return h, raw[HeaderSize:], nil
}

// putString writes a 32-bit length-prefixed string with no NUL
// terminator.
func putString(buf *[]byte, s string) {
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(s)))
	*buf = append(*buf, lenBytes[:]...)
	*buf = append(*buf, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, errors.New(errors.KindMalformed, "wire.getString", "truncated string length prefix")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(n) > uint64(len(buf)) {
		return "", nil, errors.New(errors.KindMalformed, "wire.getString", "string length exceeds remaining buffer")
	}
	return string(buf[:n]), buf[n:], nil
}

// requireEmpty rejects unknown trailing bytes left after a decoder has taken
// every field it knows about (§8 P1).
func requireEmpty(rest []byte, op string) error {
	if len(rest) != 0 {
		return errors.New(errors.KindMalformed, op, "unknown trailing bytes after last field")
	}
	return nil
}

// NicEntrySize is the fixed on-wire size of one NIC list entry: type(1) +
// 16-byte IPv6 address + port(2, always 0) + 16-byte NUL-padded name.
const NicEntrySize = 1 + 16 + 2 + 16

func putNicList(buf *[]byte, nics []model.Nic) {
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(nics)))
	*buf = append(*buf, lenBytes[:]...)
	for _, n := range nics {
		entry := make([]byte, NicEntrySize)
		entry[0] = byte(n.Type)
		ip := net.ParseIP(n.Addr).To16()
		if ip != nil {
			copy(entry[1:17], ip)
		}
		// entry[17:19] port, always 0 on the wire per §4.B
		nameLen := len(n.IfName)
		if nameLen > 16 {
			nameLen = 16
		}
		copy(entry[19:19+nameLen], n.IfName[:nameLen])
		*buf = append(*buf, entry...)
	}
}

func getNicList(buf []byte) ([]model.Nic, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, errors.New(errors.KindMalformed, "wire.getNicList", "truncated NIC list count")
	}
	count := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	out := make([]model.Nic, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < NicEntrySize {
			return nil, nil, errors.New(errors.KindMalformed, "wire.getNicList", "truncated NIC list entry")
		}
		entry := buf[:NicEntrySize]
		buf = buf[NicEntrySize:]
		nicType := model.NicType(entry[0])
		if nicType != model.NicEthernet && nicType != model.NicRDMA {
			return nil, nil, errors.New(errors.KindMalformed, "wire.getNicList", "illegal NIC type enum value")
		}
		addr := net.IP(entry[1:17]).String()
		nameBuf := entry[19:35]
		nul := len(nameBuf)
		for i, b := range nameBuf {
			if b == 0 {
				nul = i
				break
			}
		}
		out = append(out, model.Nic{Type: nicType, Addr: addr, IfName: string(nameBuf[:nul])})
	}
	return out, buf, nil
}
