package message

// Codec names a video codec in preference order for negotiation (spec §4.3).
type Codec uint8

const (
	CodecH264 Codec = iota
	CodecHEVC
	CodecAV1
)

// Resolution is a clamped width/height pair (spec §4.3 rule 2).
type Resolution struct {
	Width, Height uint16
}

// InputCaps advertises which input classes a client can inject.
type InputCaps struct {
	Keyboard, Mouse, Gamepad bool
}

// Hello is the client's session-negotiation opener (spec §4.3).
type Hello struct {
	ClientName       string
	Platform         string
	SupportedCodecs  []Codec // preference-ordered
	MaxResolution    Resolution
	MaxFPS           uint16
	InputCaps        InputCaps
	PublicAddr       string // STUN result, or "" if unknown
}

func (h Hello) Encode() []byte {
	var buf []byte
	putString(&buf, h.ClientName)
	putString(&buf, h.Platform)
	buf = append(buf, byte(len(h.SupportedCodecs)))
	for _, c := range h.SupportedCodecs {
		buf = append(buf, byte(c))
	}
	var rbuf [4]byte
	putUint16(rbuf[0:2], h.MaxResolution.Width)
	putUint16(rbuf[2:4], h.MaxResolution.Height)
	buf = append(buf, rbuf[:]...)
	var fpsBuf [2]byte
	putUint16(fpsBuf[:], h.MaxFPS)
	buf = append(buf, fpsBuf[:]...)
	var caps byte
	if h.InputCaps.Keyboard {
		caps |= 1
	}
	if h.InputCaps.Mouse {
		caps |= 2
	}
	if h.InputCaps.Gamepad {
		caps |= 4
	}
	buf = append(buf, caps)
	putString(&buf, h.PublicAddr)
	return buf
}

func DecodeHello(buf []byte) (Hello, error) {
	var h Hello
	var err error
	h.ClientName, buf, err = getString(buf)
	if err != nil {
		return h, err
	}
	h.Platform, buf, err = getString(buf)
	if err != nil {
		return h, err
	}
	if len(buf) < 1 {
		return h, ErrTruncated
	}
	n := int(buf[0])
	buf = buf[1:]
	if len(buf) < n {
		return h, ErrTruncated
	}
	for i := 0; i < n; i++ {
		h.SupportedCodecs = append(h.SupportedCodecs, Codec(buf[i]))
	}
	buf = buf[n:]
	if len(buf) < 6 {
		return h, ErrTruncated
	}
	h.MaxResolution = Resolution{Width: getUint16(buf[0:2]), Height: getUint16(buf[2:4])}
	h.MaxFPS = getUint16(buf[4:6])
	buf = buf[6:]
	if len(buf) < 1 {
		return h, ErrTruncated
	}
	caps := buf[0]
	h.InputCaps = InputCaps{Keyboard: caps&1 != 0, Mouse: caps&2 != 0, Gamepad: caps&4 != 0}
	buf = buf[1:]
	h.PublicAddr, _, err = getString(buf)
	return h, err
}

// HelloAck is the host's negotiation reply (spec §4.3).
type HelloAck struct {
	Accepted            bool
	SelectedCodec       Codec
	StreamResolution    Resolution
	FPS                 uint16
	InitialBitrateKbps  uint32
	KeyframeIntervalMs  uint32
	SessionID           [16]byte
	SessionAlias        uint32
	PublicAddr          string
}

func (a HelloAck) Encode() []byte {
	buf := make([]byte, 0, 64)
	if a.Accepted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, byte(a.SelectedCodec))
	var rbuf [4]byte
	putUint16(rbuf[0:2], a.StreamResolution.Width)
	putUint16(rbuf[2:4], a.StreamResolution.Height)
	buf = append(buf, rbuf[:]...)
	var fpsBuf [2]byte
	putUint16(fpsBuf[:], a.FPS)
	buf = append(buf, fpsBuf[:]...)
	var u32buf [4]byte
	putUint32(u32buf[:], a.InitialBitrateKbps)
	buf = append(buf, u32buf[:]...)
	putUint32(u32buf[:], a.KeyframeIntervalMs)
	buf = append(buf, u32buf[:]...)
	buf = append(buf, a.SessionID[:]...)
	putUint32(u32buf[:], a.SessionAlias)
	buf = append(buf, u32buf[:]...)
	putString(&buf, a.PublicAddr)
	return buf
}

func DecodeHelloAck(buf []byte) (HelloAck, error) {
	var a HelloAck
	if len(buf) < 1+1+4+2+4+4+16+4+2 {
		return a, ErrTruncated
	}
	a.Accepted = buf[0] != 0
	a.SelectedCodec = Codec(buf[1])
	buf = buf[2:]
	a.StreamResolution = Resolution{Width: getUint16(buf[0:2]), Height: getUint16(buf[2:4])}
	buf = buf[4:]
	a.FPS = getUint16(buf[0:2])
	buf = buf[2:]
	a.InitialBitrateKbps = getUint32(buf[0:4])
	buf = buf[4:]
	a.KeyframeIntervalMs = getUint32(buf[0:4])
	buf = buf[4:]
	copy(a.SessionID[:], buf[0:16])
	buf = buf[16:]
	a.SessionAlias = getUint32(buf[0:4])
	buf = buf[4:]
	var err error
	a.PublicAddr, _, err = getString(buf)
	return a, err
}

// Ping/Pong carry an opaque client timestamp for RTT measurement.
type Ping struct{ TsUs uint64 }
type Pong struct{ TsUs uint64 }

func (p Ping) Encode() []byte { var b [8]byte; putUint64(b[:], p.TsUs); return b[:] }
func (p Pong) Encode() []byte { var b [8]byte; putUint64(b[:], p.TsUs); return b[:] }

func DecodePing(buf []byte) (Ping, error) {
	if len(buf) < 8 {
		return Ping{}, ErrTruncated
	}
	return Ping{TsUs: getUint64(buf)}, nil
}

func DecodePong(buf []byte) (Pong, error) {
	if len(buf) < 8 {
		return Pong{}, ErrTruncated
	}
	return Pong{TsUs: getUint64(buf)}, nil
}

// Stats is the periodic feedback DELTA consumes (spec §4.5).
type Stats struct {
	PeriodMs        uint32
	ReceivedPackets uint64
	LostPackets     uint64
	RttUs           uint32
	JitterUs        uint32
}

func (s Stats) Encode() []byte {
	buf := make([]byte, 4+8+8+4+4)
	putUint32(buf[0:4], s.PeriodMs)
	putUint64(buf[4:12], s.ReceivedPackets)
	putUint64(buf[12:20], s.LostPackets)
	putUint32(buf[20:24], s.RttUs)
	putUint32(buf[24:28], s.JitterUs)
	return buf
}

func DecodeStats(buf []byte) (Stats, error) {
	if len(buf) < 28 {
		return Stats{}, ErrTruncated
	}
	return Stats{
		PeriodMs:        getUint32(buf[0:4]),
		ReceivedPackets: getUint64(buf[4:12]),
		LostPackets:     getUint64(buf[12:20]),
		RttUs:           getUint32(buf[20:24]),
		JitterUs:        getUint32(buf[24:28]),
	}, nil
}

// Congestion carries a DELTA-derived encoder directive (spec §4.5).
type Congestion struct {
	TargetBitrateKbps uint32
	TargetFPS         uint16
}

func (c Congestion) Encode() []byte {
	buf := make([]byte, 6)
	putUint32(buf[0:4], c.TargetBitrateKbps)
	putUint16(buf[4:6], c.TargetFPS)
	return buf
}

func DecodeCongestion(buf []byte) (Congestion, error) {
	if len(buf) < 6 {
		return Congestion{}, ErrTruncated
	}
	return Congestion{TargetBitrateKbps: getUint32(buf[0:4]), TargetFPS: getUint16(buf[4:6])}, nil
}

// Nack lists packet ids the client is asking the host to resend from its
// retransmit cache (spec §4.4).
type Nack struct {
	PacketIDs []uint64
}

func (n Nack) Encode() []byte {
	buf := make([]byte, 4+8*len(n.PacketIDs))
	putUint32(buf[0:4], uint32(len(n.PacketIDs)))
	for i, id := range n.PacketIDs {
		putUint64(buf[4+8*i:4+8*i+8], id)
	}
	return buf
}

func DecodeNack(buf []byte) (Nack, error) {
	if len(buf) < 4 {
		return Nack{}, ErrTruncated
	}
	count := int(getUint32(buf[0:4]))
	buf = buf[4:]
	if len(buf) < count*8 {
		return Nack{}, ErrTruncated
	}
	n := Nack{PacketIDs: make([]uint64, count)}
	for i := 0; i < count; i++ {
		n.PacketIDs[i] = getUint64(buf[i*8 : i*8+8])
	}
	return n, nil
}

// EncoderControl tells the host's send loop to drop the next N frames at
// source (spec §4.5's frame-skip output).
type EncoderControl struct {
	SkipFrames uint16
}

func (e EncoderControl) Encode() []byte { var b [2]byte; putUint16(b[:], e.SkipFrames); return b[:] }

func DecodeEncoderControl(buf []byte) (EncoderControl, error) {
	if len(buf) < 2 {
		return EncoderControl{}, ErrTruncated
	}
	return EncoderControl{SkipFrames: getUint16(buf)}, nil
}

// SelectMonitor / MonitorList are thin display-selection control messages;
// the capture backend itself is an external collaborator (spec §6).
type SelectMonitor struct{ DisplayID string }
type MonitorEntry struct {
	ID         string
	Name       string
	Resolution Resolution
}
type MonitorList struct{ Monitors []MonitorEntry }

func (s SelectMonitor) Encode() []byte {
	var buf []byte
	putString(&buf, s.DisplayID)
	return buf
}

func DecodeSelectMonitor(buf []byte) (SelectMonitor, error) {
	id, _, err := getString(buf)
	return SelectMonitor{DisplayID: id}, err
}

func (m MonitorList) Encode() []byte {
	buf := []byte{byte(len(m.Monitors))}
	for _, e := range m.Monitors {
		putString(&buf, e.ID)
		putString(&buf, e.Name)
		var rbuf [4]byte
		putUint16(rbuf[0:2], e.Resolution.Width)
		putUint16(rbuf[2:4], e.Resolution.Height)
		buf = append(buf, rbuf[:]...)
	}
	return buf
}

func DecodeMonitorList(buf []byte) (MonitorList, error) {
	if len(buf) < 1 {
		return MonitorList{}, ErrTruncated
	}
	n := int(buf[0])
	buf = buf[1:]
	var list MonitorList
	for i := 0; i < n; i++ {
		var e MonitorEntry
		var err error
		e.ID, buf, err = getString(buf)
		if err != nil {
			return list, err
		}
		e.Name, buf, err = getString(buf)
		if err != nil {
			return list, err
		}
		if len(buf) < 4 {
			return list, ErrTruncated
		}
		e.Resolution = Resolution{Width: getUint16(buf[0:2]), Height: getUint16(buf[2:4])}
		buf = buf[4:]
		list.Monitors = append(list.Monitors, e)
	}
	return list, nil
}

// PoseUpdate, HandPoseUpdate, and VrTiming are supplemented control messages
// for XR sessions (spec §6 lists them by name; the XR runtime itself is out
// of scope per §1). They carry opaque, versioned payloads so the core
// protocol can route them without depending on any XR SDK type.
type PoseUpdate struct{ Payload []byte }
type HandPoseUpdate struct{ Payload []byte }
type VrTiming struct{ Payload []byte }

func (p PoseUpdate) Encode() []byte     { return p.Payload }
func (p HandPoseUpdate) Encode() []byte { return p.Payload }
func (p VrTiming) Encode() []byte       { return p.Payload }

func DecodePoseUpdate(buf []byte) (PoseUpdate, error) {
	return PoseUpdate{Payload: append([]byte(nil), buf...)}, nil
}
func DecodeHandPoseUpdate(buf []byte) (HandPoseUpdate, error) {
	return HandPoseUpdate{Payload: append([]byte(nil), buf...)}, nil
}
func DecodeVrTiming(buf []byte) (VrTiming, error) {
	return VrTiming{Payload: append([]byte(nil), buf...)}, nil
}
