package gp0

// Opcode groups selected by the top three bits of a command word.
const (
	groupMisc     = 0
	groupPolygon  = 1
	groupLine     = 2
	groupRect     = 3
	groupCopy     = 4
	groupCPUToVRM = 5
	groupVRMToCPU = 6
	groupSettings = 7
)

// Miscellaneous opcodes in group 0.
const (
	opNop        = 0x00
	opClearCache = 0x01
	opFill       = 0x02
	opIRQ        = 0x1F
)

// maxArgs is the longest argument list: a gouraud textured quad.
const maxArgs = 4*2 + 3

// Command word flag bits shared by the drawing groups.
const (
	flagRaw      = 1 << 24
	flagSemi     = 1 << 25
	flagTextured = 1 << 26
	flagQuad     = 1 << 27 // polygons
	flagPoly     = 1 << 27 // lines
	flagGouraud  = 1 << 28
)

// ArgCount returns how many argument words follow the command word with
// the given opcode (the top byte of the command word). Reserved opcodes
// take no arguments.
//
// Polylines report the count of their first segment; further vertices are
// streamed until the terminator word.
func ArgCount(opcode byte) int {
	w := uint32(opcode) << 24
	switch opcode >> 5 {
	case groupMisc:
		if opcode == opFill {
			return 2
		}
		return 0
	case groupPolygon:
		n := 3
		if w&flagQuad != 0 {
			n = 4
		}
		return n*(1+b2i(w&flagTextured != 0)) + (n-1)*b2i(w&flagGouraud != 0)
	case groupLine:
		return 2 + b2i(w&flagGouraud != 0)
	case groupRect:
		variable := (opcode>>3)&3 == 0
		return 1 + b2i(w&flagTextured != 0) + b2i(variable)
	case groupCopy:
		return 3
	case groupCPUToVRM, groupVRMToCPU:
		return 2
	default:
		return 0
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
