package compiler

import (
	"github.com/rplus-lang/rplus/bytecode"
)

// Compiler lowers a parsed program to a bytecode module. Function
// bodies are compiled independently, each with its own emitter and
// register allocator; the module is finalized before it is returned,
// so every jump target is an absolute offset and every call immediate
// is an entry point.
type Compiler struct {
	module *bytecode.Module
	scopes *scopeTable
	funcs  map[string]int // function name -> module function index
}

// Compile parses nothing; it takes an already parsed program.
func Compile(prog *Program) (*bytecode.Module, error) {
	c := &Compiler{
		module: bytecode.NewModule(),
		scopes: newScopeTable(),
		funcs:  make(map[string]int),
	}

	// Split top level statements from function declarations. The
	// synthesized main function occupies index 0 so execution starts
	// with the top level code.
	var decls []*FunctionDecl
	var top []Stmt
	for _, stmt := range prog.Statements {
		if decl, ok := stmt.(*FunctionDecl); ok {
			decls = append(decls, decl)
		} else {
			top = append(top, stmt)
		}
	}

	// Register every function signature up front so calls can be
	// compiled before their callee's body, including forward calls.
	c.module.AddFunction(bytecode.Function{Name: "main"})
	for _, decl := range decls {
		if _, exists := c.funcs[decl.Name]; exists {
			return nil, newError(ErrSyntax, decl.Position(), "function %s redefined", decl.Name)
		}
		idx := c.module.AddFunction(bytecode.Function{
			Name:      decl.Name,
			NumParams: len(decl.Params),
		})
		c.funcs[decl.Name] = idx
	}

	for _, decl := range decls {
		code, err := c.compileFunction(decl)
		if err != nil {
			return nil, err
		}
		c.module.Functions[c.funcs[decl.Name]].Code = code
	}

	mainCode, err := c.compileMain(top)
	if err != nil {
		return nil, err
	}
	c.module.Functions[0].Code = mainCode

	c.module.DataSize = uint64(c.scopes.dataSize())
	if err := c.module.Finalize(); err != nil {
		return nil, err
	}
	return c.module, nil
}

// CompileSource is the convenience front door: source text in, final
// module out.
func CompileSource(source string) (*bytecode.Module, error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return Compile(prog)
}

// funcCompiler carries the per-function emission state: the emitter,
// the loop label stacks for break and continue, and for the main
// function the label of the trailing HALT. cellBase marks where this
// function's data cells start; the cells from there up to the current
// high-water mark form its frame, saved around calls so re-entering
// the function cannot clobber a suspended activation.
type funcCompiler struct {
	c *Compiler
	e *emitter

	cellBase uint32

	breakLabels    []int
	continueLabels []int

	isMain   bool
	endLabel int
}

// compileFunction emits the body of a declared function. Arguments
// arrive on the operand stack pushed left to right, so the prologue
// pops them in reverse into the parameter cells. A body that does not
// end in a return gets an implicit "return null".
func (c *Compiler) compileFunction(decl *FunctionDecl) ([]bytecode.Instruction, error) {
	fc := &funcCompiler{c: c, e: newEmitter(), cellBase: c.scopes.nextAddr}
	c.scopes.push()
	defer c.scopes.pop()

	addrs := make([]uint32, len(decl.Params))
	for i, name := range decl.Params {
		addrs[i] = c.scopes.define(name)
	}
	for i := len(decl.Params) - 1; i >= 0; i-- {
		rv, err := fc.e.allocReg(decl.Position())
		if err != nil {
			return nil, err
		}
		fc.e.emit(bytecode.OpPop, rv, 0, 0, 0)
		fc.storeCell(addrs[i], rv)
	}

	for _, stmt := range decl.Body.Statements {
		if err := fc.compileStmt(stmt); err != nil {
			return nil, err
		}
	}

	if n := len(fc.e.code); n == 0 || fc.e.code[n-1].Op != bytecode.OpRet {
		fc.emitReturnNull()
	}

	if err := fc.e.backpatch(); err != nil {
		return nil, err
	}
	return fc.e.code, nil
}

// compileMain emits the synthesized entry function from the top level
// statements. Top level returns jump to the trailing HALT with their
// value already on the stack; falling off the end leaves null there.
func (c *Compiler) compileMain(top []Stmt) ([]bytecode.Instruction, error) {
	fc := &funcCompiler{c: c, e: newEmitter(), isMain: true}
	fc.endLabel = fc.e.newLabel()
	c.scopes.push()
	defer c.scopes.pop()

	for _, stmt := range top {
		if err := fc.compileStmt(stmt); err != nil {
			return nil, err
		}
	}

	fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, 0)
	fc.e.emit(bytecode.OpPush, 0, scratchRegister, 0, 0)

	fc.e.markLabel(fc.endLabel)
	fc.e.emit(bytecode.OpHalt, 0, 0, 0, 0)

	if err := fc.e.backpatch(); err != nil {
		return nil, err
	}
	return fc.e.code, nil
}

// emitReturnNull is the implicit function epilogue: null on the stack,
// then return.
func (fc *funcCompiler) emitReturnNull() {
	fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, 0)
	fc.e.emit(bytecode.OpPush, 0, scratchRegister, 0, 0)
	fc.e.emit(bytecode.OpRet, 0, 0, 0, 0)
}

// storeCell writes a register into a fixed data region cell. The cell
// address goes through the scratch register, which the STORE consumes
// immediately.
func (fc *funcCompiler) storeCell(addr uint32, value uint8) {
	fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, uint64(addr))
	fc.e.emit(bytecode.OpStore, 0, scratchRegister, value, 0)
}

// loadCell reads a fixed data region cell into a fresh register.
func (fc *funcCompiler) loadCell(addr uint32, pos Position) (uint8, error) {
	fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, uint64(addr))
	rv, err := fc.e.allocReg(pos)
	if err != nil {
		return 0, err
	}
	fc.e.emit(bytecode.OpLoad, rv, scratchRegister, 0, 0)
	return rv, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (fc *funcCompiler) compileStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *BlockStmt:
		// Blocks do not open a scope; only functions and for loops do.
		for _, inner := range s.Statements {
			if err := fc.compileStmt(inner); err != nil {
				return err
			}
		}
		return nil

	case *VarDecl:
		return fc.compileVarDecl(s)

	case *AssignStmt:
		return fc.compileAssign(s)

	case *ExprStmt:
		_, err := fc.compileExpr(s.Expr)
		return err

	case *IfStmt:
		return fc.compileIf(s)

	case *WhileStmt:
		return fc.compileWhile(s)

	case *ForStmt:
		return fc.compileFor(s)

	case *ReturnStmt:
		return fc.compileReturn(s)

	case *BreakStmt:
		if len(fc.breakLabels) == 0 {
			return newError(ErrSyntax, s.Position(), "break outside loop")
		}
		fc.e.emitJump(bytecode.OpJmp, 0, 0, pendingTarget(fc.breakLabels[len(fc.breakLabels)-1]))
		return nil

	case *ContinueStmt:
		if len(fc.continueLabels) == 0 {
			return newError(ErrSyntax, s.Position(), "continue outside loop")
		}
		fc.e.emitJump(bytecode.OpJmp, 0, 0, pendingTarget(fc.continueLabels[len(fc.continueLabels)-1]))
		return nil

	case *FunctionDecl:
		return newError(ErrUnsupportedConstruct, s.Position(), "nested function declarations are not supported")

	case *ClassDecl:
		return newError(ErrUnsupportedConstruct, s.Position(), "class declarations are not supported")

	case *ThrowStmt:
		return newError(ErrUnsupportedConstruct, s.Position(), "throw is not supported")

	case *TryStmt:
		return newError(ErrUnsupportedConstruct, s.Position(), "try/catch is not supported")

	default:
		return newError(ErrUnsupportedConstruct, stmt.Position(), "cannot compile statement")
	}
}

func (fc *funcCompiler) compileVarDecl(s *VarDecl) error {
	var rv uint8
	var err error
	if s.Value != nil {
		rv, err = fc.compileExpr(s.Value)
	} else {
		rv, err = fc.e.allocReg(s.Position())
		if err == nil {
			fc.e.emit(bytecode.OpLoadImm, rv, 0, 0, 0)
		}
	}
	if err != nil {
		return err
	}

	addr := fc.c.scopes.define(s.Name)
	fc.storeCell(addr, rv)
	return nil
}

func (fc *funcCompiler) compileAssign(s *AssignStmt) error {
	rv, err := fc.compileExpr(s.Value)
	if err != nil {
		return err
	}

	switch target := s.Target.(type) {
	case *Identifier:
		// Assignment binds the name if it is not already bound in the
		// innermost scope.
		addr, ok := fc.c.scopes.lookup(target.Name)
		if !ok {
			addr = fc.c.scopes.define(target.Name)
		}
		fc.storeCell(addr, rv)
		return nil

	case *IndexExpr:
		raddr, err := fc.compileElementAddr(target)
		if err != nil {
			return err
		}
		fc.e.emit(bytecode.OpStore, 0, raddr, rv, 0)
		return nil

	default:
		return newError(ErrSyntax, s.Position(), "invalid assignment target")
	}
}

func (fc *funcCompiler) compileIf(s *IfStmt) error {
	rc, err := fc.compileExpr(s.Cond)
	if err != nil {
		return err
	}

	elseLabel := fc.e.newLabel()
	fc.e.emitJump(bytecode.OpJz, rc, 0, pendingTarget(elseLabel))

	if err := fc.compileStmt(s.Then); err != nil {
		return err
	}

	endLabel := fc.e.newLabel()
	fc.e.emitJump(bytecode.OpJmp, 0, 0, pendingTarget(endLabel))

	fc.e.markLabel(elseLabel)
	if s.Else != nil {
		if err := fc.compileStmt(s.Else); err != nil {
			return err
		}
	}
	fc.e.markLabel(endLabel)
	return nil
}

func (fc *funcCompiler) compileWhile(s *WhileStmt) error {
	loopLabel := fc.e.newLabel()
	fc.e.markLabel(loopLabel)

	rc, err := fc.compileExpr(s.Cond)
	if err != nil {
		return err
	}

	exitLabel := fc.e.newLabel()
	fc.e.emitJump(bytecode.OpJz, rc, 0, pendingTarget(exitLabel))

	fc.pushLoop(exitLabel, loopLabel)
	err = fc.compileStmt(s.Body)
	fc.popLoop()
	if err != nil {
		return err
	}

	fc.e.emitJump(bytecode.OpJmp, 0, 0, pendingTarget(loopLabel))
	fc.e.markLabel(exitLabel)
	return nil
}

// compileFor opens a dedicated scope for the initializer bindings, so
// loop variables do not leak and, by the innermost-only resolution
// rule, outer bindings are not visible inside the loop.
func (fc *funcCompiler) compileFor(s *ForStmt) error {
	fc.c.scopes.push()
	defer fc.c.scopes.pop()

	if s.Init != nil {
		if err := fc.compileStmt(s.Init); err != nil {
			return err
		}
	}

	loopLabel := fc.e.newLabel()
	fc.e.markLabel(loopLabel)

	rc := uint8(scratchRegister)
	if s.Cond != nil {
		var err error
		rc, err = fc.compileExpr(s.Cond)
		if err != nil {
			return err
		}
	} else {
		fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, 1)
	}

	exitLabel := fc.e.newLabel()
	fc.e.emitJump(bytecode.OpJz, rc, 0, pendingTarget(exitLabel))

	updateLabel := fc.e.newLabel()
	fc.pushLoop(exitLabel, updateLabel)
	err := fc.compileStmt(s.Body)
	fc.popLoop()
	if err != nil {
		return err
	}

	fc.e.markLabel(updateLabel)
	if s.Update != nil {
		if err := fc.compileStmt(s.Update); err != nil {
			return err
		}
	}

	fc.e.emitJump(bytecode.OpJmp, 0, 0, pendingTarget(loopLabel))
	fc.e.markLabel(exitLabel)
	return nil
}

func (fc *funcCompiler) compileReturn(s *ReturnStmt) error {
	rv := uint8(scratchRegister)
	if s.Value != nil {
		var err error
		rv, err = fc.compileExpr(s.Value)
		if err != nil {
			return err
		}
	} else {
		fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, 0)
	}

	fc.e.emit(bytecode.OpPush, 0, rv, 0, 0)
	if fc.isMain {
		// Top level return jumps to the trailing HALT; the result
		// stays on the stack for the embedder.
		fc.e.emitJump(bytecode.OpJmp, 0, 0, pendingTarget(fc.endLabel))
	} else {
		fc.e.emit(bytecode.OpRet, 0, 0, 0, 0)
	}
	return nil
}

func (fc *funcCompiler) pushLoop(breakLabel, continueLabel int) {
	fc.breakLabels = append(fc.breakLabels, breakLabel)
	fc.continueLabels = append(fc.continueLabels, continueLabel)
}

func (fc *funcCompiler) popLoop() {
	fc.breakLabels = fc.breakLabels[:len(fc.breakLabels)-1]
	fc.continueLabels = fc.continueLabels[:len(fc.continueLabels)-1]
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// compileExpr emits code evaluating the expression and returns the
// register holding the result.
func (fc *funcCompiler) compileExpr(expr Expr) (uint8, error) {
	switch e := expr.(type) {
	case *Literal:
		return fc.compileLiteral(e)

	case *Identifier:
		addr, ok := fc.c.scopes.lookup(e.Name)
		if !ok {
			return 0, newError(ErrUndefinedVariable, e.Position(), "undefined variable %s", e.Name)
		}
		return fc.loadCell(addr, e.Position())

	case *BinaryExpr:
		return fc.compileBinary(e)

	case *UnaryExpr:
		return fc.compileUnary(e)

	case *CallExpr:
		return fc.compileCall(e)

	case *IndexExpr:
		raddr, err := fc.compileElementAddr(e)
		if err != nil {
			return 0, err
		}
		rd, err := fc.e.allocReg(e.Position())
		if err != nil {
			return 0, err
		}
		fc.e.emit(bytecode.OpLoad, rd, raddr, 0, 0)
		return rd, nil

	case *ArrayLiteral:
		return fc.compileArrayLiteral(e)

	case *ObjectLiteral:
		return 0, newError(ErrUnsupportedConstruct, e.Position(), "object literals are not supported")

	case *Lambda:
		return 0, newError(ErrUnsupportedConstruct, e.Position(), "anonymous functions are not supported")

	default:
		return 0, newError(ErrUnsupportedConstruct, expr.Position(), "cannot compile expression")
	}
}

func (fc *funcCompiler) compileLiteral(e *Literal) (uint8, error) {
	var idx int
	switch e.Kind {
	case LitNumber:
		idx = fc.c.module.AddConstant(bytecode.NumberValue(e.Num))
	case LitString:
		idx = fc.c.module.AddConstant(bytecode.StringValue(e.Str))
	case LitBool:
		idx = fc.c.module.AddConstant(bytecode.BoolValue(e.Bool))
	case LitNull:
		idx = fc.c.module.AddConstant(bytecode.NilValue())
	}

	rd, err := fc.e.allocReg(e.Position())
	if err != nil {
		return 0, err
	}
	fc.e.emit(bytecode.OpLoadConst, rd, 0, 0, uint64(idx))
	return rd, nil
}

func (fc *funcCompiler) compileBinary(e *BinaryExpr) (uint8, error) {
	ra, err := fc.compileExpr(e.Left)
	if err != nil {
		return 0, err
	}
	rb, err := fc.compileExpr(e.Right)
	if err != nil {
		return 0, err
	}

	switch e.Op {
	case TokenPlus:
		return fc.emitBinaryOp(bytecode.OpAdd, ra, rb, e.Position())
	case TokenMinus:
		return fc.emitBinaryOp(bytecode.OpSub, ra, rb, e.Position())
	case TokenStar:
		return fc.emitBinaryOp(bytecode.OpMul, ra, rb, e.Position())
	case TokenSlash:
		return fc.emitBinaryOp(bytecode.OpDiv, ra, rb, e.Position())
	case TokenPercent:
		return fc.emitBinaryOp(bytecode.OpMod, ra, rb, e.Position())
	case TokenAmpersand:
		return fc.emitBinaryOp(bytecode.OpAnd, ra, rb, e.Position())
	case TokenPipe:
		return fc.emitBinaryOp(bytecode.OpOr, ra, rb, e.Position())
	case TokenCaret:
		return fc.emitBinaryOp(bytecode.OpXor, ra, rb, e.Position())
	case TokenShiftLeft:
		return fc.emitBinaryOp(bytecode.OpShl, ra, rb, e.Position())
	case TokenShiftRight:
		return fc.emitBinaryOp(bytecode.OpShr, ra, rb, e.Position())

	case TokenAndAnd:
		// Both sides are evaluated; the result is the bitwise AND of
		// the normalized truth values.
		na, err := fc.boolify(ra, e.Position())
		if err != nil {
			return 0, err
		}
		nb, err := fc.boolify(rb, e.Position())
		if err != nil {
			return 0, err
		}
		return fc.emitBinaryOp(bytecode.OpAnd, na, nb, e.Position())

	case TokenOrOr:
		na, err := fc.boolify(ra, e.Position())
		if err != nil {
			return 0, err
		}
		nb, err := fc.boolify(rb, e.Position())
		if err != nil {
			return 0, err
		}
		return fc.emitBinaryOp(bytecode.OpOr, na, nb, e.Position())

	case TokenEqual:
		return fc.compileFlagCompare(ra, rb, bytecode.OpJz, e.Position())
	case TokenNotEqual:
		return fc.compileFlagCompare(ra, rb, bytecode.OpJnz, e.Position())
	case TokenLess:
		return fc.compileOrderedCompare(ra, rb, bytecode.OpJlt, e.Position())
	case TokenLessEq:
		return fc.compileOrderedCompare(ra, rb, bytecode.OpJle, e.Position())
	case TokenGreater:
		return fc.compileOrderedCompare(ra, rb, bytecode.OpJgt, e.Position())
	case TokenGreaterEq:
		return fc.compileOrderedCompare(ra, rb, bytecode.OpJge, e.Position())

	default:
		return 0, newError(ErrUnknownOperator, e.Position(), "unknown binary operator %s", e.Op)
	}
}

func (fc *funcCompiler) emitBinaryOp(op bytecode.Opcode, ra, rb uint8, pos Position) (uint8, error) {
	rd, err := fc.e.allocReg(pos)
	if err != nil {
		return 0, err
	}
	fc.e.emit(op, rd, ra, rb, 0)
	return rd, nil
}

// compileFlagCompare materializes == or != through the comparison flag
// register: CMP sets the flag, and a conditional jump on the flag
// decides between the preset 1 and the fallthrough 0.
func (fc *funcCompiler) compileFlagCompare(ra, rb uint8, jump bytecode.Opcode, pos Position) (uint8, error) {
	fc.e.emit(bytecode.OpCmp, 0, ra, rb, 0)

	rd, err := fc.e.allocReg(pos)
	if err != nil {
		return 0, err
	}
	endLabel := fc.e.newLabel()
	fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, 1)
	fc.e.emitJump(jump, flagRegister, 0, pendingTarget(endLabel))
	fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, 0)
	fc.e.markLabel(endLabel)
	return rd, nil
}

// compileOrderedCompare materializes <, <=, > and >= with the signed
// register-pair jumps, skipping the flag register entirely.
func (fc *funcCompiler) compileOrderedCompare(ra, rb uint8, jump bytecode.Opcode, pos Position) (uint8, error) {
	rd, err := fc.e.allocReg(pos)
	if err != nil {
		return 0, err
	}
	endLabel := fc.e.newLabel()
	fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, 1)
	fc.e.emitJump(jump, ra, rb, pendingTarget(endLabel))
	fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, 0)
	fc.e.markLabel(endLabel)
	return rd, nil
}

// boolify normalizes a register to 1 or 0.
func (fc *funcCompiler) boolify(r uint8, pos Position) (uint8, error) {
	rd, err := fc.e.allocReg(pos)
	if err != nil {
		return 0, err
	}
	endLabel := fc.e.newLabel()
	fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, 1)
	fc.e.emitJump(bytecode.OpJnz, r, 0, pendingTarget(endLabel))
	fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, 0)
	fc.e.markLabel(endLabel)
	return rd, nil
}

func (fc *funcCompiler) compileUnary(e *UnaryExpr) (uint8, error) {
	ra, err := fc.compileExpr(e.Operand)
	if err != nil {
		return 0, err
	}

	switch e.Op {
	case TokenMinus:
		fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, 0)
		return fc.emitBinaryOp(bytecode.OpSub, scratchRegister, ra, e.Position())

	case TokenBang:
		rd, err := fc.e.allocReg(e.Position())
		if err != nil {
			return 0, err
		}
		endLabel := fc.e.newLabel()
		fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, 1)
		fc.e.emitJump(bytecode.OpJz, ra, 0, pendingTarget(endLabel))
		fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, 0)
		fc.e.markLabel(endLabel)
		return rd, nil

	case TokenTilde:
		fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, ^uint64(0))
		return fc.emitBinaryOp(bytecode.OpXor, ra, scratchRegister, e.Position())

	default:
		return 0, newError(ErrUnknownOperator, e.Position(), "unknown unary operator %s", e.Op)
	}
}

// compileCall lowers a call to the stack convention: the caller saves
// every register it has allocated so far and its own data cells, pushes
// the arguments left to right, and after the callee returns pops the
// result into a fresh register before restoring cells and registers.
// Cells must be saved because cell addresses are fixed per function, so
// a recursive activation would otherwise overwrite the caller's
// parameters and locals. Main is never re-entered and skips the cell
// traffic.
func (fc *funcCompiler) compileCall(e *CallExpr) (uint8, error) {
	argRegs := make([]uint8, len(e.Args))
	for i, arg := range e.Args {
		r, err := fc.compileExpr(arg)
		if err != nil {
			return 0, err
		}
		argRegs[i] = r
	}

	idx, ok := fc.c.funcs[e.Name]
	if !ok {
		return 0, newError(ErrUndefinedFunction, e.Position(), "undefined function %s", e.Name)
	}
	fn := fc.c.module.Functions[idx]
	if len(e.Args) != fn.NumParams {
		return 0, newError(ErrSyntax, e.Position(), "%s expects %d arguments, got %d",
			e.Name, fn.NumParams, len(e.Args))
	}

	saved := fc.e.nextReg
	for r := 0; r < saved; r++ {
		fc.e.emit(bytecode.OpPush, 0, uint8(r), 0, 0)
	}
	cellTop := fc.c.scopes.nextAddr
	if !fc.isMain {
		for addr := fc.cellBase; addr < cellTop; addr += 8 {
			fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, uint64(addr))
			fc.e.emit(bytecode.OpLoad, scratchRegister, scratchRegister, 0, 0)
			fc.e.emit(bytecode.OpPush, 0, scratchRegister, 0, 0)
		}
	}
	for _, r := range argRegs {
		fc.e.emit(bytecode.OpPush, 0, r, 0, 0)
	}

	fc.e.emit(bytecode.OpCall, 0, 0, 0, uint64(idx))

	rd, err := fc.e.allocReg(e.Position())
	if err != nil {
		return 0, err
	}
	fc.e.emit(bytecode.OpPop, rd, 0, 0, 0)
	if !fc.isMain {
		// The temp holds each popped cell value. A register whose
		// saved value is still on the stack, or one never allocated,
		// is free to clobber here; only rd must be avoided.
		tmp := uint8(0)
		if rd == 0 {
			tmp = 1
		}
		for addr := cellTop; addr > fc.cellBase; addr -= 8 {
			fc.e.emit(bytecode.OpPop, tmp, 0, 0, 0)
			fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, uint64(addr-8))
			fc.e.emit(bytecode.OpStore, 0, scratchRegister, tmp, 0)
		}
	}
	for r := saved - 1; r >= 0; r-- {
		fc.e.emit(bytecode.OpPop, uint8(r), 0, 0, 0)
	}
	return rd, nil
}

// compileElementAddr computes the heap address of arr[index] into a
// register: base plus index scaled by the cell size.
func (fc *funcCompiler) compileElementAddr(e *IndexExpr) (uint8, error) {
	rbase, err := fc.compileExpr(e.Array)
	if err != nil {
		return 0, err
	}
	ridx, err := fc.compileExpr(e.Index)
	if err != nil {
		return 0, err
	}

	fc.e.emit(bytecode.OpLoadImm, scratchRegister, 0, 0, 3)
	roff, err := fc.e.allocReg(e.Position())
	if err != nil {
		return 0, err
	}
	fc.e.emit(bytecode.OpShl, roff, ridx, scratchRegister, 0)
	fc.e.emit(bytecode.OpAdd, roff, roff, rbase, 0)
	return roff, nil
}

// compileArrayLiteral reserves a contiguous run of data cells, stores
// each element, and yields the base address as the array value.
func (fc *funcCompiler) compileArrayLiteral(e *ArrayLiteral) (uint8, error) {
	base := fc.c.scopes.reserve(uint32(len(e.Elements)))

	for i, elem := range e.Elements {
		rv, err := fc.compileExpr(elem)
		if err != nil {
			return 0, err
		}
		fc.storeCell(base+uint32(i)*8, rv)
	}

	rd, err := fc.e.allocReg(e.Position())
	if err != nil {
		return 0, err
	}
	fc.e.emit(bytecode.OpLoadImm, rd, 0, 0, uint64(base))
	return rd, nil
}
