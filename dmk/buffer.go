package dmk

// initCRC resets the CRC accumulator, per spec.md §4.1 — done immediately
// before each protected field (ID field or data field).
func (h *Handle) initCRC() {
	h.crc = crcInit
}

// feedCRC folds a byte into the running accumulator without touching the
// track buffer or cursor. Used to pre-seed the three MFM 0xA1 sync bytes
// into the CRC domain before the address-mark byte (spec.md §4.1 / §4.3).
func (h *Handle) feedCRC(b byte) {
	h.crc = crcAccumulate(h.crc, b)
}

// incP advances the cursor by one physical byte. Overflow past
// track_length is a hard internal error — wrapping would silently corrupt
// a sector straddling the gap-5 seam, which must not happen for a
// well-formed track layout.
func (h *Handle) incP() {
	h.p++
	if h.p > h.geometry.TrackLength {
		internalError("cursor overflow")
	}
}

// doubled reports whether the current track is FM-encoded on
// double-density media, in which case one logical byte occupies two
// physical buffer positions (spec.md §3 invariant 2).
func (h *Handle) doubled() bool {
	return h.geometry.DoubleDensity && h.curMode == ModeFM
}

// readBytes reads n logical bytes starting at the cursor, feeding each
// into the CRC accumulator and advancing the cursor per the FM-doubling
// rule.
func (h *Handle) readBytes(n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b := h.curTrack.buf[h.p]
		h.incP()
		if h.doubled() {
			h.incP()
		}
		h.crc = crcAccumulate(h.crc, b)
		out[i] = b
	}
	return out
}

// readByte reads a single byte via readBytes.
func (h *Handle) readByte() byte {
	return h.readBytes(1)[0]
}

// checkCRC reads the two CRC bytes stored at the cursor and reports
// whether they equal the accumulator's current {high, low} bytes —
// equivalently, whether continuing to feed them drives the residue to
// zero. The original library used `&&` between the two byte comparisons,
// which accepts an image where exactly one CRC byte is corrupt; this
// requires both bytes to match.
func (h *Handle) checkCRC() bool {
	want := h.crc
	d := h.readBytes(2)
	return d[0] == byte(want>>8) && d[1] == byte(want)
}

// writeBytes writes data starting at the cursor, feeding each byte into
// the CRC accumulator, applying the FM-doubling rule, and marking the
// current track dirty. No-op if the handle isn't writable.
func (h *Handle) writeBytes(data []byte) {
	if !h.writable {
		return
	}
	h.curTrack.dirty = true
	for _, b := range data {
		h.crc = crcAccumulate(h.crc, b)
		h.curTrack.buf[h.p] = b
		h.incP()
		if h.doubled() {
			h.curTrack.buf[h.p] = b
			h.incP()
		}
	}
}

// writeFill writes count copies of val starting at the cursor.
func (h *Handle) writeFill(count int, val byte) {
	if count <= 0 {
		return
	}
	buf := make([]byte, count)
	for i := range buf {
		buf[i] = val
	}
	h.writeBytes(buf)
}

// writeCRC appends the current CRC accumulator's high byte then low byte.
func (h *Handle) writeCRC() {
	h.writeBytes([]byte{byte(h.crc >> 8), byte(h.crc)})
}
