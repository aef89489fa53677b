package message

// Key reports a keyboard key transition.
type Key struct {
	Keycode uint32
	Pressed bool
}

func (k Key) Encode() []byte {
	buf := make([]byte, 5)
	putUint32(buf[0:4], k.Keycode)
	if k.Pressed {
		buf[4] = 1
	}
	return buf
}

func DecodeKey(buf []byte) (Key, error) {
	if len(buf) < 5 {
		return Key{}, ErrTruncated
	}
	return Key{Keycode: getUint32(buf[0:4]), Pressed: buf[4] != 0}, nil
}

// MouseButton reports a mouse button transition.
type MouseButton struct {
	Button  uint8
	Pressed bool
}

func (m MouseButton) Encode() []byte {
	buf := make([]byte, 2)
	buf[0] = m.Button
	if m.Pressed {
		buf[1] = 1
	}
	return buf
}

func DecodeMouseButton(buf []byte) (MouseButton, error) {
	if len(buf) < 2 {
		return MouseButton{}, ErrTruncated
	}
	return MouseButton{Button: buf[0], Pressed: buf[1] != 0}, nil
}

// MouseMove reports an absolute pointer position in the negotiated stream
// resolution's coordinate space.
type MouseMove struct {
	X, Y int32
}

func (m MouseMove) Encode() []byte {
	buf := make([]byte, 8)
	putUint32(buf[0:4], uint32(m.X))
	putUint32(buf[4:8], uint32(m.Y))
	return buf
}

func DecodeMouseMove(buf []byte) (MouseMove, error) {
	if len(buf) < 8 {
		return MouseMove{}, ErrTruncated
	}
	return MouseMove{X: int32(getUint32(buf[0:4])), Y: int32(getUint32(buf[4:8]))}, nil
}

// Scroll reports a wheel delta.
type Scroll struct {
	Dx, Dy int32
}

func (s Scroll) Encode() []byte {
	buf := make([]byte, 8)
	putUint32(buf[0:4], uint32(s.Dx))
	putUint32(buf[4:8], uint32(s.Dy))
	return buf
}

func DecodeScroll(buf []byte) (Scroll, error) {
	if len(buf) < 8 {
		return Scroll{}, ErrTruncated
	}
	return Scroll{Dx: int32(getUint32(buf[0:4])), Dy: int32(getUint32(buf[4:8]))}, nil
}

// Gamepad reports a full controller snapshot: button bitmask plus four
// analog axes (left stick x/y, right stick x/y), each a normalized int16.
type Gamepad struct {
	Buttons uint32
	AxisLX  int16
	AxisLY  int16
	AxisRX  int16
	AxisRY  int16
}

func (g Gamepad) Encode() []byte {
	buf := make([]byte, 12)
	putUint32(buf[0:4], g.Buttons)
	putUint16(buf[4:6], uint16(g.AxisLX))
	putUint16(buf[6:8], uint16(g.AxisLY))
	putUint16(buf[8:10], uint16(g.AxisRX))
	putUint16(buf[10:12], uint16(g.AxisRY))
	return buf
}

func DecodeGamepad(buf []byte) (Gamepad, error) {
	if len(buf) < 12 {
		return Gamepad{}, ErrTruncated
	}
	return Gamepad{
		Buttons: getUint32(buf[0:4]),
		AxisLX:  int16(getUint16(buf[4:6])),
		AxisLY:  int16(getUint16(buf[6:8])),
		AxisRX:  int16(getUint16(buf[8:10])),
		AxisRY:  int16(getUint16(buf[10:12])),
	}, nil
}
