package vm

import "fmt"

// Opcode is a single bytecode instruction. Operands follow inline, little endian.
type Opcode byte

const (
	OpConst     Opcode = iota + 1 // int32: push integer
	OpUnit                        // push ()
	OpGetGlobal                   // uint32 slot: push global
	OpSetGlobal                   // uint32 slot: pop into global
	OpAcc                         // uint8 n: push argument n
	OpEnvAcc                      // uint8 n: push captured value n
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPop
	OpClosure // int32 entry, uint8 arity, uint8 captured: build a closure
	OpApply   // uint8 argc: call the value below the arguments
	OpPrim    // uint32 index, uint8 argc: call a primitive
	OpRaise   // raise the top of stack
	OpReturn  // return the top of stack, or () when empty

	// OpTrailer marks the closure trailer appended after the last instruction of an image.
	OpTrailer Opcode = 0xFE
)

// TrailerSize is the size of the trailer after the final OpReturn.
const TrailerSize = 7

// Trailer is the fixed trailer: OpTrailer, arity 1 (uint32), no captured values (uint16).
// Invoke refuses images that do not end with OpReturn followed by exactly these bytes.
var Trailer = [TrailerSize]byte{byte(OpTrailer), 1, 0, 0, 0, 0, 0}

var opNames = map[Opcode]string{
	OpConst:     "CONST",
	OpUnit:      "UNIT",
	OpGetGlobal: "GETGLOBAL",
	OpSetGlobal: "SETGLOBAL",
	OpAcc:       "ACC",
	OpEnvAcc:    "ENVACC",
	OpAdd:       "ADD",
	OpSub:       "SUB",
	OpMul:       "MUL",
	OpDiv:       "DIV",
	OpPop:       "POP",
	OpClosure:   "CLOSURE",
	OpApply:     "APPLY",
	OpPrim:      "PRIM",
	OpRaise:     "RAISE",
	OpReturn:    "RETURN",
	OpTrailer:   "TRAILER",
}

var opWidths = map[Opcode]int{
	OpConst:     4,
	OpGetGlobal: 4,
	OpSetGlobal: 4,
	OpAcc:       1,
	OpEnvAcc:    1,
	OpClosure:   6,
	OpApply:     1,
	OpPrim:      5,
}

func (o Opcode) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("OP(%d)", byte(o))
}

// Width is the number of operand bytes following o.
func (o Opcode) Width() int {
	return opWidths[o]
}

// Valid reports whether o is a known instruction.
func (o Opcode) Valid() bool {
	_, ok := opNames[o]
	return ok
}
