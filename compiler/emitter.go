package compiler

import (
	"fmt"

	"github.com/rplus-lang/rplus/bytecode"
)

// maxCompilerRegister is the highest register the allocator hands out.
// The register above it is the CMP flag register; since the flag is
// only live between a CMP and the jump that reads it, the same register
// doubles as a scratch for cell addresses and short-lived immediates,
// each consumed by the instruction emitted right after its load.
const (
	maxCompilerRegister = 14
	flagRegister        = 15
	scratchRegister     = flagRegister
)

// jumpTarget is the operand of an emitted jump instruction. While a
// function body is being emitted, forward jumps carry a pending label
// id; once every label is marked, backpatch rewrites each pending
// target to a resolved instruction offset. A module is only handed out
// after every target is resolved.
type jumpTarget struct {
	resolved bool
	label    int
	offset   int
}

func pendingTarget(label int) jumpTarget {
	return jumpTarget{label: label}
}

func resolvedTarget(offset int) jumpTarget {
	return jumpTarget{resolved: true, offset: offset}
}

// emitter builds the instruction stream for a single function. It owns
// the function's register allocator and label bookkeeping; offsets are
// relative to the function start until module finalization.
type emitter struct {
	code    []bytecode.Instruction
	targets map[int]jumpTarget // instruction index -> jump operand
	labels  map[int]int        // label id -> instruction offset

	nextLabel int
	nextReg   int
}

func newEmitter() *emitter {
	return &emitter{
		targets: make(map[int]jumpTarget),
		labels:  make(map[int]int),
	}
}

// allocReg returns the next unused register. Registers are never
// reclaimed within a function; running past the budget is a
// compile-time RegisterOverflow.
func (e *emitter) allocReg(pos Position) (uint8, error) {
	if e.nextReg > maxCompilerRegister {
		return 0, newError(ErrRegisterOverflow, pos,
			"expression too deep: more than %d registers required", maxCompilerRegister+1)
	}
	r := uint8(e.nextReg)
	e.nextReg++
	return r, nil
}

// offset reports the index the next emitted instruction will occupy.
func (e *emitter) offset() int {
	return len(e.code)
}

// emit appends an instruction and returns its index.
func (e *emitter) emit(op bytecode.Opcode, dest, src1, src2 uint8, imm uint64) int {
	idx := len(e.code)
	e.code = append(e.code, bytecode.Instruction{
		Op:   op,
		Dest: dest,
		Src1: src1,
		Src2: src2,
		Imm:  imm,
	})
	return idx
}

// emitJump appends a jump instruction whose target is recorded for the
// backpatch pass. Resolved targets are written into the immediate right
// away; pending ones leave it zero until backpatch.
func (e *emitter) emitJump(op bytecode.Opcode, src1, src2 uint8, target jumpTarget) int {
	var imm uint64
	if target.resolved {
		imm = uint64(target.offset)
	}
	idx := e.emit(op, 0, src1, src2, imm)
	e.targets[idx] = target
	return idx
}

// newLabel mints a fresh label id for a not-yet-known offset.
func (e *emitter) newLabel() int {
	id := e.nextLabel
	e.nextLabel++
	return id
}

// markLabel pins a label to the current emission offset.
func (e *emitter) markLabel(label int) {
	e.labels[label] = len(e.code)
}

// backpatch resolves every pending jump target against the marked
// labels and rewrites the jump immediates. It fails if any target is
// still pending afterwards, so an unmarked label can never reach the
// virtual machine.
func (e *emitter) backpatch() error {
	for idx, target := range e.targets {
		if !target.resolved {
			offset, ok := e.labels[target.label]
			if !ok {
				return fmt.Errorf("internal: unresolved label %d at instruction %d", target.label, idx)
			}
			target = resolvedTarget(offset)
			e.targets[idx] = target
		}
		e.code[idx].Imm = uint64(target.offset)
	}
	return nil
}
