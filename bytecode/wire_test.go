package bytecode

import (
	"bytes"
	"testing"
)

func testModule(t *testing.T) *Module {
	t.Helper()

	m := NewModule()
	m.DataSize = 24
	m.AddConstant(NumberValue(1234567890123))
	m.AddConstant(StringValue("hello"))
	m.AddConstant(BoolValue(true))
	m.AddFunction(Function{
		Name: "main",
		Code: []Instruction{
			{Op: OpLoadImm, Dest: 0, Imm: 7},
			{Op: OpCall, Imm: 1},
			{Op: OpHalt},
		},
	})
	m.AddFunction(Function{
		Name:      "inc",
		NumParams: 1,
		Code: []Instruction{
			{Op: OpLoadImm, Dest: 1, Imm: 1},
			{Op: OpAdd, Dest: 0, Src1: 0, Src2: 1},
			{Op: OpRet},
		},
	})
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return m
}

func TestSerializeRequiresFinalize(t *testing.T) {
	m := NewModule()
	m.AddFunction(Function{Name: "main", Code: []Instruction{{Op: OpHalt}}})

	if _, err := m.Serialize(); err == nil {
		t.Errorf("Serialize accepted an unfinalized module")
	}
}

func TestSerializeHeader(t *testing.T) {
	m := testModule(t)

	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	if !bytes.HasPrefix(data, WireMagic) {
		t.Errorf("Serialized module does not start with magic %q", WireMagic)
	}
}

func TestRoundTrip(t *testing.T) {
	m := testModule(t)

	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if got.DataSize != m.DataSize {
		t.Errorf("DataSize = %d, want %d", got.DataSize, m.DataSize)
	}
	if len(got.Code) != len(m.Code) {
		t.Fatalf("Code length = %d, want %d", len(got.Code), len(m.Code))
	}
	for i := range m.Code {
		if got.Code[i] != m.Code[i] {
			t.Errorf("Code[%d] = %v, want %v", i, got.Code[i], m.Code[i])
		}
	}
	if len(got.Constants) != len(m.Constants) {
		t.Fatalf("Constant count = %d, want %d", len(got.Constants), len(m.Constants))
	}
	for i := range m.Constants {
		if !got.Constants[i].Equal(m.Constants[i]) {
			t.Errorf("Constants[%d] = %v, want %v", i, got.Constants[i], m.Constants[i])
		}
	}
	if len(got.Functions) != len(m.Functions) {
		t.Fatalf("Function count = %d, want %d", len(got.Functions), len(m.Functions))
	}
	for i := range m.Functions {
		if got.Functions[i].Name != m.Functions[i].Name ||
			got.Functions[i].NumParams != m.Functions[i].NumParams ||
			got.Functions[i].Entry != m.Functions[i].Entry ||
			len(got.Functions[i].Code) != len(m.Functions[i].Code) {
			t.Errorf("Functions[%d] mismatch: got %+v", i, got.Functions[i])
		}
	}
}

func TestRoundTripByteForByte(t *testing.T) {
	m := testModule(t)

	first, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	decoded, err := Deserialize(first)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	second, err := decoded.Serialize()
	if err != nil {
		t.Fatalf("Re-serialize failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("Re-serialized module differs from original bytes")
	}
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	m := testModule(t)
	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	data[0] = 'X'
	if _, err := Deserialize(data); err == nil {
		t.Errorf("Deserialize accepted bad magic")
	}
}

func TestDeserializeRejectsNewerVersion(t *testing.T) {
	m := testModule(t)
	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	data[4] = 0xFF
	if _, err := Deserialize(data); err == nil {
		t.Errorf("Deserialize accepted a newer format version")
	}
}

func TestDeserializeRejectsTruncated(t *testing.T) {
	m := testModule(t)
	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	// Every proper prefix must fail cleanly, never panic
	for n := 0; n < len(data); n++ {
		if _, err := Deserialize(data[:n]); err == nil {
			t.Errorf("Deserialize accepted truncated input of %d bytes", n)
		}
	}
}
