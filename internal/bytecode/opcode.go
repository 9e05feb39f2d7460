// Package bytecode implements the Kronos instruction set: the opcode
// enumeration, the Bytecode record (code + constant pool), a disassembler,
// and a Builder used by tests and the cmd/kronos demo CLI to hand-assemble
// programs without going through a lexer/parser/compiler pipeline.
package bytecode

import "fmt"

// Opcode is one byte of the instruction stream.
type Opcode uint8

// "stack picture" comments give operands consumed, then produced, left to
// right in push order.
const ( //nolint:revive
	// Constants / variables.
	LOAD_CONST Opcode = iota // - LOAD_CONST<idx:u16> value
	LOAD_VAR                 // - LOAD_VAR<name_idx:u16> value
	STORE_VAR                // value STORE_VAR<name_idx:u16><mutable:u8><has_type:u8>[type_idx:u16] -

	// Arithmetic / compare / logic.
	ADD // x y ADD z
	SUB // x y SUB z
	MUL // x y MUL z
	DIV // x y DIV z
	MOD // x y MOD z
	NEG // x NEG -x
	EQ  // x y EQ bool
	NEQ // x y NEQ bool
	GT  // x y GT bool
	LT  // x y LT bool
	GTE // x y GTE bool
	LTE // x y LTE bool
	AND // x y AND bool
	OR  // x y OR bool
	NOT // x NOT bool

	// I/O.
	PRINT // x PRINT -
	POP   // x POP -

	// Control flow.
	JUMP          // - JUMP<offset:i8> -
	JUMP_IF_FALSE // cond JUMP_IF_FALSE<offset:u8> - (peeks cond, then pops)

	// Functions.
	DEFINE_FUNC // - DEFINE_FUNC<name_idx:u16><param_count:u8><param_idx...:u16><body_start:u16><skip_offset:u8> -
	CALL_FUNC   // arg_n ... arg_1 CALL_FUNC<name_idx:u16><arg_count:u8> result
	RETURN_VAL  // value RETURN_VAL -

	// Containers.
	LIST_NEW    // elem_1 ... elem_n LIST_NEW<count:u16> list
	LIST_APPEND // list elem LIST_APPEND -
	LIST_GET    // list idx LIST_GET elem
	LIST_SET    // list idx val LIST_SET -
	LIST_LEN    // list LIST_LEN n
	LIST_SLICE  // list start end LIST_SLICE list
	LIST_ITER   // iterable LIST_ITER pair
	LIST_NEXT   // pair LIST_NEXT pair'
	MAP_NEW     // k_1 v_1 ... k_n v_n MAP_NEW<count:u16> map
	MAP_SET     // map key val MAP_SET -
	DELETE      // container key DELETE -
	RANGE_NEW   // start end step RANGE_NEW range

	// Imports.
	IMPORT // - IMPORT<name_idx:u16><path_idx:u16> -

	// Exceptions.
	TRY_ENTER // - TRY_ENTER<handler_offset:u16> -
	TRY_EXIT  // - TRY_EXIT<finally_offset:u16> -
	CATCH     // - CATCH<type_idx:u16><var_idx:u16> -
	FINALLY   // - FINALLY -
	THROW     // msg THROW<type_idx:u16> -

	// Termination.
	HALT // - HALT -

	opcodeCount
)

// AnyType is the sentinel constant-pool index meaning "any error type" in
// CATCH and THROW type operands.
const AnyType uint16 = 0xFFFF

var opcodeNames = [...]string{
	LOAD_CONST:    "load_const",
	LOAD_VAR:      "load_var",
	STORE_VAR:     "store_var",
	ADD:           "add",
	SUB:           "sub",
	MUL:           "mul",
	DIV:           "div",
	MOD:           "mod",
	NEG:           "neg",
	EQ:            "eq",
	NEQ:           "neq",
	GT:            "gt",
	LT:            "lt",
	GTE:           "gte",
	LTE:           "lte",
	AND:           "and",
	OR:            "or",
	NOT:           "not",
	PRINT:         "print",
	POP:           "pop",
	JUMP:          "jump",
	JUMP_IF_FALSE: "jump_if_false",
	DEFINE_FUNC:   "define_func",
	CALL_FUNC:     "call_func",
	RETURN_VAL:    "return_val",
	LIST_NEW:      "list_new",
	LIST_APPEND:   "list_append",
	LIST_GET:      "list_get",
	LIST_SET:      "list_set",
	LIST_LEN:      "list_len",
	LIST_SLICE:    "list_slice",
	LIST_ITER:     "list_iter",
	LIST_NEXT:     "list_next",
	MAP_NEW:       "map_new",
	MAP_SET:       "map_set",
	DELETE:        "delete",
	RANGE_NEW:     "range_new",
	IMPORT:        "import",
	TRY_ENTER:     "try_enter",
	TRY_EXIT:      "try_exit",
	CATCH:         "catch",
	FINALLY:       "finally",
	THROW:         "throw",
	HALT:          "halt",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("illegal op (%d)", op)
}

// Valid reports whether op is one of the closed set of defined opcodes.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}
