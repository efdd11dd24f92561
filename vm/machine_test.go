package vm

import (
	"testing"

	"github.com/rplus-lang/rplus/bytecode"
)

// loadProgram wraps raw instructions in a single-function module and
// loads it into a fresh machine.
func loadProgram(t *testing.T, code ...bytecode.Instruction) *Machine {
	t.Helper()

	mod := bytecode.NewModule()
	mod.AddFunction(bytecode.Function{Name: "main", Code: code})

	m := New()
	if err := m.LoadModule(mod); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	return m
}

// loadFunctions builds a module from full function bodies, so CALL
// immediates are function indexes the way the compiler emits them.
func loadFunctions(t *testing.T, fns ...bytecode.Function) *Machine {
	t.Helper()

	mod := bytecode.NewModule()
	for _, fn := range fns {
		mod.AddFunction(fn)
	}

	m := New()
	if err := m.LoadModule(mod); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	return m
}

func mustRun(t *testing.T, m *Machine) {
	t.Helper()
	if err := m.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func reg(t *testing.T, m *Machine, r uint8) uint64 {
	t.Helper()
	v, err := m.Register(r)
	if err != nil {
		t.Fatalf("Register(%d) failed: %v", r, err)
	}
	return v
}

func TestRunArithmeticProgram(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: 2},
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 1, Imm: 3},
		bytecode.Instruction{Op: bytecode.OpAdd, Dest: 2, Src1: 0, Src2: 1},
		bytecode.Instruction{Op: bytecode.OpPush, Src1: 2},
		bytecode.Instruction{Op: bytecode.OpHalt},
	)
	mustRun(t, m)

	if m.Status() != StatusHalted {
		t.Fatalf("Status = %s, want halted", m.Status())
	}
	result, err := m.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if result != 5 {
		t.Errorf("Result = %d, want 5", result)
	}
}

func TestHaltByRunningPastEnd(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: 9},
	)
	mustRun(t, m)

	if m.Status() != StatusHalted {
		t.Errorf("Status = %s, want halted", m.Status())
	}
	if got := reg(t, m, 0); got != 9 {
		t.Errorf("r0 = %d, want 9", got)
	}
}

func TestDivisionByZeroLeavesDestUntouched(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 2, Imm: 77},
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: 10},
		bytecode.Instruction{Op: bytecode.OpDiv, Dest: 2, Src1: 0, Src2: 1},
		bytecode.Instruction{Op: bytecode.OpHalt},
	)

	err := m.Run()
	if kind, ok := FaultKindOf(err); !ok || kind != FaultDivisionByZero {
		t.Fatalf("Run gave %v, want DivisionByZero fault", err)
	}
	if m.Status() != StatusFaulted {
		t.Errorf("Status = %s, want faulted", m.Status())
	}
	if got := reg(t, m, 2); got != 77 {
		t.Errorf("r2 = %d after faulting DIV, want 77 untouched", got)
	}
	if m.Fault() == nil || m.Fault().PC != 2 {
		t.Errorf("Fault PC = %v, want 2", m.Fault())
	}
}

func TestModuloByZeroFaults(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpMod, Dest: 0, Src1: 1, Src2: 2},
	)

	err := m.Run()
	if kind, ok := FaultKindOf(err); !ok || kind != FaultDivisionByZero {
		t.Errorf("Run gave %v, want DivisionByZero fault", err)
	}
}

func TestShiftCountsMaskedToSixBits(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: 1},
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 1, Imm: 64},
		bytecode.Instruction{Op: bytecode.OpShl, Dest: 2, Src1: 0, Src2: 1},
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 3, Imm: 65},
		bytecode.Instruction{Op: bytecode.OpShl, Dest: 4, Src1: 0, Src2: 3},
		bytecode.Instruction{Op: bytecode.OpHalt},
	)
	mustRun(t, m)

	// Shift counts wrap at 64: 1 << 64 behaves as 1 << 0
	if got := reg(t, m, 2); got != 1 {
		t.Errorf("1 << 64 = %d, want 1", got)
	}
	if got := reg(t, m, 4); got != 2 {
		t.Errorf("1 << 65 = %d, want 2", got)
	}
}

func TestCmpSetsFlagRegister(t *testing.T) {
	tests := []struct {
		a, b uint64
		want uint64
	}{
		{5, 5, FlagEqual},
		{3, 9, FlagLess},
		{9, 3, FlagGreater},
		// Signed comparison: -1 < 1
		{0xFFFFFFFFFFFFFFFF, 1, FlagLess},
	}

	for _, tt := range tests {
		m := loadProgram(t,
			bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: tt.a},
			bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 1, Imm: tt.b},
			bytecode.Instruction{Op: bytecode.OpCmp, Src1: 0, Src2: 1},
			bytecode.Instruction{Op: bytecode.OpHalt},
		)
		mustRun(t, m)

		if got := reg(t, m, FlagRegister); got != tt.want {
			t.Errorf("CMP %d, %d set flag %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestJumpLoop(t *testing.T) {
	// r0 counts down from 5; r1 accumulates iterations
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: 5},
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 1, Imm: 0},
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 2, Imm: 1},
		bytecode.Instruction{Op: bytecode.OpJz, Src1: 0, Imm: 7},
		bytecode.Instruction{Op: bytecode.OpSub, Dest: 0, Src1: 0, Src2: 2},
		bytecode.Instruction{Op: bytecode.OpAdd, Dest: 1, Src1: 1, Src2: 2},
		bytecode.Instruction{Op: bytecode.OpJmp, Imm: 3},
		bytecode.Instruction{Op: bytecode.OpHalt},
	)
	mustRun(t, m)

	if got := reg(t, m, 1); got != 5 {
		t.Errorf("Loop ran %d iterations, want 5", got)
	}
}

func TestJumpToOffsetZero(t *testing.T) {
	// A backward jump to offset 0 must re-execute the first instruction
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpAdd, Dest: 0, Src1: 0, Src2: 1}, // r0 += r1
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 1, Imm: 1},
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 2, Imm: 2},
		bytecode.Instruction{Op: bytecode.OpCmp, Src1: 0, Src2: 2},
		bytecode.Instruction{Op: bytecode.OpJnz, Src1: FlagRegister, Imm: 0},
		bytecode.Instruction{Op: bytecode.OpHalt},
	)
	mustRun(t, m)

	if got := reg(t, m, 0); got != 2 {
		t.Errorf("r0 = %d, want 2", got)
	}
}

func TestNestedCallsReturnInLIFOOrder(t *testing.T) {
	// main calls f, f calls g, both return
	m := loadFunctions(t,
		bytecode.Function{Name: "main", Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadImm, Dest: 0, Imm: 1},
			{Op: bytecode.OpCall, Imm: 1},
			{Op: bytecode.OpLoadImm, Dest: 3, Imm: 100},
			{Op: bytecode.OpHalt},
		}},
		bytecode.Function{Name: "f", Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadImm, Dest: 1, Imm: 2},
			{Op: bytecode.OpCall, Imm: 2},
			{Op: bytecode.OpRet},
		}},
		bytecode.Function{Name: "g", Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadImm, Dest: 2, Imm: 3},
			{Op: bytecode.OpRet},
		}},
	)
	mustRun(t, m)

	if got := reg(t, m, 3); got != 100 {
		t.Errorf("Control never returned to main: r3 = %d", got)
	}
	if reg(t, m, 0) != 1 || reg(t, m, 1) != 2 || reg(t, m, 2) != 3 {
		t.Errorf("Call chain skipped a body: r0=%d r1=%d r2=%d",
			reg(t, m, 0), reg(t, m, 1), reg(t, m, 2))
	}
	if m.CallDepth() != 0 {
		t.Errorf("CallDepth = %d after balanced calls, want 0", m.CallDepth())
	}
}

func TestDeeplyNestedCalls(t *testing.T) {
	// Recursive countdown: f returns when r0 hits zero
	m := loadFunctions(t,
		bytecode.Function{Name: "main", Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadImm, Dest: 0, Imm: 50},
			{Op: bytecode.OpLoadImm, Dest: 1, Imm: 1},
			{Op: bytecode.OpCall, Imm: 1},
			{Op: bytecode.OpHalt},
		}},
		bytecode.Function{Name: "f", Code: []bytecode.Instruction{
			{Op: bytecode.OpJz, Src1: 0, Imm: 3},
			{Op: bytecode.OpSub, Dest: 0, Src1: 0, Src2: 1},
			{Op: bytecode.OpCall, Imm: 1},
			{Op: bytecode.OpRet},
		}},
	)

	if err := m.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if m.Status() != StatusHalted {
		t.Errorf("Status = %s, want halted", m.Status())
	}
	if m.CallDepth() != 0 {
		t.Errorf("CallDepth = %d, want 0", m.CallDepth())
	}
}

func TestReturnWithEmptyCallStack(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpRet},
	)

	err := m.Run()
	if kind, ok := FaultKindOf(err); !ok || kind != FaultBrokenCallStack {
		t.Errorf("Run gave %v, want BrokenCallStack fault", err)
	}
}

func TestCallDepthLimit(t *testing.T) {
	// CALL to itself recurses until the call stack limit
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpCall, Imm: 0},
	)

	err := m.Run()
	if kind, ok := FaultKindOf(err); !ok || kind != FaultStackOverflow {
		t.Errorf("Unbounded recursion gave %v, want StackOverflow fault", err)
	}
}

func TestInvalidRegisterFaultsBeforeSideEffects(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: 42},
		bytecode.Instruction{Op: bytecode.OpAdd, Dest: 20, Src1: 0, Src2: 0},
	)

	err := m.Run()
	if kind, ok := FaultKindOf(err); !ok || kind != FaultInvalidRegister {
		t.Fatalf("Run gave %v, want InvalidRegister fault", err)
	}
	for r := uint8(0); r < NumRegisters; r++ {
		want := uint64(0)
		if r == 0 {
			want = 42
		}
		if got := reg(t, m, r); got != want {
			t.Errorf("r%d = %d after faulting instruction, want %d", r, got, want)
		}
	}
}

func TestInvalidRegisterPushLeavesStackAlone(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpPush, Src1: 99},
	)

	err := m.Run()
	if kind, ok := FaultKindOf(err); !ok || kind != FaultInvalidRegister {
		t.Fatalf("Run gave %v, want InvalidRegister fault", err)
	}
	if m.Stack().SP() != 0 {
		t.Errorf("SP = %d after faulting PUSH, want 0", m.Stack().SP())
	}
}

func TestInvalidOpcodeFaults(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.Opcode(0xEE)},
	)

	err := m.Run()
	if kind, ok := FaultKindOf(err); !ok || kind != FaultInvalidOpcode {
		t.Errorf("Run gave %v, want InvalidOpcode fault", err)
	}
}

func TestLoadStoreRoundTrip(t *testing.T) {
	mod := bytecode.NewModule()
	mod.DataSize = 16
	mod.AddFunction(bytecode.Function{Name: "main", Code: []bytecode.Instruction{
		{Op: bytecode.OpLoadImm, Dest: 0, Imm: 8},      // address
		{Op: bytecode.OpLoadImm, Dest: 1, Imm: 0xCAFE}, // value
		{Op: bytecode.OpStore, Src1: 0, Src2: 1},
		{Op: bytecode.OpLoad, Dest: 2, Src1: 0},
		{Op: bytecode.OpHalt},
	}})

	m := New()
	if err := m.LoadModule(mod); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	mustRun(t, m)

	if got := reg(t, m, 2); got != 0xCAFE {
		t.Errorf("LOAD after STORE = %#x, want 0xCAFE", got)
	}
}

func TestLoadModuleReservesDataRegion(t *testing.T) {
	mod := bytecode.NewModule()
	mod.DataSize = 40
	mod.AddFunction(bytecode.Function{Name: "main", Code: []bytecode.Instruction{
		{Op: bytecode.OpHalt},
	}})

	m := New()
	if err := m.LoadModule(mod); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}

	// The first program allocation lands past the data region
	addr, err := m.Heap().Allocate(8)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if addr != 40 {
		t.Errorf("First allocation at %d, want 40", addr)
	}
}

func TestLoadConstNumberAndString(t *testing.T) {
	mod := bytecode.NewModule()
	numIdx := mod.AddConstant(bytecode.NumberValue(1234))
	strIdx := mod.AddConstant(bytecode.StringValue("hi"))
	mod.AddFunction(bytecode.Function{Name: "main", Code: []bytecode.Instruction{
		{Op: bytecode.OpLoadConst, Dest: 0, Imm: uint64(numIdx)},
		{Op: bytecode.OpLoadConst, Dest: 1, Imm: uint64(strIdx)},
		{Op: bytecode.OpHalt},
	}})

	m := New()
	if err := m.LoadModule(mod); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	mustRun(t, m)

	if got := reg(t, m, 0); got != 1234 {
		t.Errorf("Numeric constant = %d, want 1234", got)
	}

	// String constants resolve to the address of their heap cell
	addr := uint32(reg(t, m, 1))
	raw, err := m.Heap().ReadBytes(addr, 2)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if string(raw) != "hi" {
		t.Errorf("String cell holds %q, want %q", raw, "hi")
	}
}

func TestLoadModuleResetsState(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: 7},
		bytecode.Instruction{Op: bytecode.OpPush, Src1: 0},
		bytecode.Instruction{Op: bytecode.OpHalt},
	)
	mustRun(t, m)

	mod := bytecode.NewModule()
	mod.AddFunction(bytecode.Function{Name: "main", Code: []bytecode.Instruction{
		{Op: bytecode.OpHalt},
	}})
	if err := m.LoadModule(mod); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}

	if m.Status() != StatusReady {
		t.Errorf("Status = %s after reload, want ready", m.Status())
	}
	if got := reg(t, m, 0); got != 0 {
		t.Errorf("r0 = %d after reload, want 0", got)
	}
	if m.Stack().SP() != 0 {
		t.Errorf("SP = %d after reload, want 0", m.Stack().SP())
	}
	if m.PC() != 0 {
		t.Errorf("PC = %d after reload, want 0", m.PC())
	}
}

func TestStepSingleInstruction(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpLoadImm, Dest: 0, Imm: 5},
		bytecode.Instruction{Op: bytecode.OpHalt},
	)

	done, err := m.Step()
	if err != nil || done {
		t.Fatalf("First Step = %v, %v, want false, nil", done, err)
	}
	if m.PC() != 1 {
		t.Errorf("PC = %d after one step, want 1", m.PC())
	}
	if got := reg(t, m, 0); got != 5 {
		t.Errorf("r0 = %d after one step, want 5", got)
	}

	done, err = m.Step()
	if err != nil || !done {
		t.Fatalf("Second Step = %v, %v, want true, nil", done, err)
	}
	if m.Status() != StatusHalted {
		t.Errorf("Status = %s, want halted", m.Status())
	}

	// Stepping a halted machine is a no-op
	done, err = m.Step()
	if err != nil || !done {
		t.Errorf("Step after halt = %v, %v, want true, nil", done, err)
	}
}

func TestStepWithoutModule(t *testing.T) {
	m := New()
	if _, err := m.Step(); err == nil {
		t.Errorf("Step without a module succeeded")
	}
}

func TestRunAfterFaultReturnsSameFault(t *testing.T) {
	m := loadProgram(t,
		bytecode.Instruction{Op: bytecode.OpDiv, Dest: 0, Src1: 0, Src2: 1},
	)

	first := m.Run()
	second := m.Run()
	if first == nil || first != second {
		t.Errorf("Re-running a faulted machine gave %v then %v", first, second)
	}
}
