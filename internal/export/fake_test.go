// internal/export/fake_test.go
package export

import (
	"errors"
	"sync"
)

// ---- fake endpoint client ----

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

// fakeEndpointClient records writes and mirrors them into a register map.
type fakeEndpointClient struct {
	mu     sync.Mutex
	writes []writeCall
	mem    map[uint16]uint16
	fail   bool
}

func (f *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return errors.New("endpoint down")
	}
	if f.mem == nil {
		f.mem = make(map[uint16]uint16)
	}
	f.writes = append(f.writes, writeCall{unitID: unitID, addr: addr, regs: append([]uint16(nil), regs...)})
	for i, r := range regs {
		f.mem[addr+uint16(i)] = r
	}
	return nil
}

func (f *fakeEndpointClient) last() writeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return writeCall{}
	}
	return f.writes[len(f.writes)-1]
}

func (f *fakeEndpointClient) first() writeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return writeCall{}
	}
	return f.writes[0]
}

func (f *fakeEndpointClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeEndpointClient) reg(addr uint16) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mem[addr]
}

func (f *fakeEndpointClient) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}
