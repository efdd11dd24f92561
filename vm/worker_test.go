package vm

import (
	"context"
	"sync"
	"testing"

	"github.com/rplus-lang/rplus/bytecode"
)

func TestWorkerRunsProgram(t *testing.T) {
	mod := bytecode.NewModule()
	mod.AddFunction(bytecode.Function{Name: "main", Code: []bytecode.Instruction{
		{Op: bytecode.OpLoadImm, Dest: 0, Imm: 6},
		{Op: bytecode.OpLoadImm, Dest: 1, Imm: 7},
		{Op: bytecode.OpMul, Dest: 2, Src1: 0, Src2: 1},
		{Op: bytecode.OpPush, Src1: 2},
		{Op: bytecode.OpHalt},
	}})

	w := NewWorker(New())
	defer w.Stop()

	result, err := w.Do(context.Background(), func(m *Machine) (any, error) {
		if err := m.LoadModule(mod); err != nil {
			return nil, err
		}
		if err := m.Run(); err != nil {
			return nil, err
		}
		return m.Result()
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if result.(uint64) != 42 {
		t.Errorf("Result = %v, want 42", result)
	}
}

func TestWorkerSerializesConcurrentAccess(t *testing.T) {
	mod := bytecode.NewModule()
	mod.AddFunction(bytecode.Function{Name: "main", Code: []bytecode.Instruction{
		{Op: bytecode.OpHalt},
	}})

	m := New()
	if err := m.LoadModule(mod); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}

	w := NewWorker(m)
	defer w.Stop()

	// Each goroutine increments r0 read-modify-write; the worker must
	// serialize them for the final count to be exact.
	const goroutines = 32
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Do(context.Background(), func(m *Machine) (any, error) {
				v, err := m.Register(0)
				if err != nil {
					return nil, err
				}
				return nil, m.SetRegister(0, v+1)
			})
			if err != nil {
				t.Errorf("Do failed: %v", err)
			}
		}()
	}
	wg.Wait()

	result, err := w.Do(context.Background(), func(m *Machine) (any, error) {
		return m.Register(0)
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if result.(uint64) != goroutines {
		t.Errorf("r0 = %v after %d increments, want %d", result, goroutines, goroutines)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := NewWorker(New())
	defer w.Stop()

	_, err := w.Do(context.Background(), func(m *Machine) (any, error) {
		panic("boom")
	})
	if err == nil {
		t.Errorf("Do swallowed a panic")
	}
}

func TestWorkerHonorsContext(t *testing.T) {
	w := NewWorker(New())
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Do(ctx, func(m *Machine) (any, error) {
		return nil, nil
	})
	if err != context.Canceled {
		t.Errorf("Do on a cancelled context gave %v, want context.Canceled", err)
	}
}
