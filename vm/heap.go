package vm

import "encoding/binary"

// Heap is the machine's byte-addressed data memory. Allocation is a
// bump pointer that only moves forward: Deallocate zeroes the region
// for the next program but never returns it to the allocator, so no
// address is ever handed out twice.
type Heap struct {
	data     []byte
	allocPtr uint64
}

// NewHeap creates a zeroed heap of the given size in bytes.
func NewHeap(size uint64) *Heap {
	return &Heap{data: make([]byte, size)}
}

// Size returns the total heap size in bytes.
func (h *Heap) Size() uint64 {
	return uint64(len(h.data))
}

// AllocPtr returns the current bump pointer.
func (h *Heap) AllocPtr() uint64 {
	return h.allocPtr
}

// Allocate reserves size bytes and returns their address. The region is
// zeroed. Fails with an OutOfMemory fault when the bump pointer would
// pass the end of the heap.
func (h *Heap) Allocate(size uint64) (uint32, error) {
	if size > uint64(len(h.data)) || h.allocPtr > uint64(len(h.data))-size {
		return 0, newFault(FaultOutOfMemory, "allocation of %d bytes exceeds heap of %d", size, len(h.data))
	}

	addr := uint32(h.allocPtr)
	h.allocPtr += size

	region := h.data[addr : uint64(addr)+size]
	for i := range region {
		region[i] = 0
	}
	return addr, nil
}

// Deallocate zeroes a previously allocated region. The address range is
// bounds-checked but the allocator does not reclaim it.
func (h *Heap) Deallocate(addr uint32, size uint64) error {
	if uint64(addr) >= uint64(len(h.data)) || uint64(addr)+size > uint64(len(h.data)) {
		return newFault(FaultMemory, "deallocation of [%d, %d) out of bounds", addr, uint64(addr)+size)
	}

	region := h.data[addr : uint64(addr)+size]
	for i := range region {
		region[i] = 0
	}
	return nil
}

// Read returns up to 8 bytes at addr as a little-endian word.
func (h *Heap) Read(addr uint32, size uint64) (uint64, error) {
	if uint64(addr)+size > uint64(len(h.data)) {
		return 0, newFault(FaultMemory, "read of %d bytes at %d out of bounds", size, addr)
	}

	if size > 8 {
		size = 8
	}
	var word [8]byte
	copy(word[:], h.data[addr:uint64(addr)+size])
	return binary.LittleEndian.Uint64(word[:]), nil
}

// Write stores the low size bytes of value at addr, little-endian.
func (h *Heap) Write(addr uint32, value uint64, size uint64) error {
	if uint64(addr)+size > uint64(len(h.data)) {
		return newFault(FaultMemory, "write of %d bytes at %d out of bounds", size, addr)
	}

	if size > 8 {
		size = 8
	}
	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], value)
	copy(h.data[addr:uint64(addr)+size], word[:size])
	return nil
}

// WriteBytes copies raw bytes into the heap. Used when loading string
// constants into their cells.
func (h *Heap) WriteBytes(addr uint32, b []byte) error {
	if uint64(addr)+uint64(len(b)) > uint64(len(h.data)) {
		return newFault(FaultMemory, "write of %d bytes at %d out of bounds", len(b), addr)
	}
	copy(h.data[addr:], b)
	return nil
}

// ReadBytes copies size raw bytes out of the heap.
func (h *Heap) ReadBytes(addr uint32, size uint64) ([]byte, error) {
	if uint64(addr)+size > uint64(len(h.data)) {
		return nil, newFault(FaultMemory, "read of %d bytes at %d out of bounds", size, addr)
	}
	out := make([]byte, size)
	copy(out, h.data[addr:uint64(addr)+size])
	return out, nil
}
