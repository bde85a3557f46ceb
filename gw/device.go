// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gw

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"

	"github.com/go-lpc/pixie16/internal/mmap"
	"golang.org/x/sys/unix"
)

// register map, in bytes, within the lightweight HPS-to-FPGA bridge.
// Offsets are crate-specific constants; only their relative layout
// matters to this package.
const (
	regBase     = 0x0
	regSlotBase = 0x1000 // one uint32 slot id per module
	regFIFOBase = 0x2000 // one uint32 fifo-depth word per module
	regCtrlBase = 0x3000 // one uint32 run-status word per module

	lwSpan = 0x10000
)

var _ Gateway = (*Device)(nil)

// Device is the real Gateway implementation: it reaches crate registers
// through a memory-mapped window over devmem, exactly as the reference
// front-end reaches its FPGA registers.
type Device struct {
	msg *log.Logger
	cfg config

	fd *os.File
	lw *mmap.Handle

	nmods int
	slots []int

	xbuf [4]byte
}

// New opens the crate's memory-mapped device file and returns a Device
// configured by opts.
func New(opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	fd, err := os.OpenFile(cfg.devmem, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("gw: could not open %q: %w", cfg.devmem, err)
	}
	defer func() {
		if err != nil {
			_ = fd.Close()
		}
	}()

	dev := &Device{
		msg:   log.New(os.Stdout, "gw: ", 0),
		cfg:   cfg,
		fd:    fd,
		slots: append([]int(nil), cfg.slots...),
	}
	dev.nmods = len(dev.slots)

	data, err := unix.Mmap(
		int(fd.Fd()), regBase, lwSpan,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("gw: could not mmap %q: %w", cfg.devmem, err)
	}
	dev.lw = mmap.HandleFrom(data)

	return dev, nil
}

func (dev *Device) DiscoverSlots() error {
	dev.nmods = 0
	for i := 0; i < 32; i++ {
		v := dev.readU32(regSlotBase + int64(i)*4)
		if v == 0 {
			break
		}
		dev.slots = append(dev.slots[:i], int(v))
		dev.nmods = i + 1
	}
	return nil
}

func (dev *Device) Init() error {
	dev.msg.Printf("initializing crate driver session")
	return nil
}

// Boot clears every module's run-control register. The mode is only
// logged: no DSP parameters are downloaded, no FPGA is programmed and
// slots are not rediscovered, in either mode.
func (dev *Device) Boot(mode BootMode) error {
	dev.msg.Printf("booting crate (mode=%v)", mode)
	for m := 0; m < dev.nmods; m++ {
		dev.writeU32(regCtrlBase+int64(m)*4, 0)
	}
	return nil
}

func (dev *Device) NumModules() int { return dev.nmods }

func (dev *Device) SlotOf(m int) int {
	if m < 0 || m >= len(dev.slots) {
		return -1
	}
	return dev.slots[m]
}

func (dev *Device) FIFODepth(m int) (int, error) {
	if m < 0 || m >= dev.nmods {
		return 0, fmt.Errorf("gw: invalid module index %d", m)
	}
	return int(dev.readU32(regFIFOBase + int64(m)*4)), nil
}

func (dev *Device) ReadFIFO(m int, dest []uint32, n int) error {
	if m < 0 || m >= dev.nmods {
		return fmt.Errorf("gw: invalid module index %d", m)
	}
	if len(dest) < n {
		return fmt.Errorf("gw: destination buffer too small (%d < %d)", len(dest), n)
	}
	off := regFIFOBase + int64(m)*4 + 4
	buf := make([]byte, 4*n)
	_, err := dev.lw.ReadAt(buf, off)
	if err != nil {
		return fmt.Errorf("gw: could not read %d words from module %d fifo: %w", n, m, err)
	}
	for i := 0; i < n; i++ {
		dest[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return nil
}

func (dev *Device) StartListMode() error {
	for m := 0; m < dev.nmods; m++ {
		dev.writeU32(regCtrlBase+int64(m)*4, 1)
	}
	return nil
}

func (dev *Device) EndListMode() error {
	for m := 0; m < dev.nmods; m++ {
		dev.writeU32(regCtrlBase+int64(m)*4, 0)
	}
	return nil
}

func (dev *Device) RunStatus(m int) (int, error) {
	if m < 0 || m >= dev.nmods {
		return 0, fmt.Errorf("gw: invalid module index %d", m)
	}
	return int(dev.readU32(regCtrlBase + int64(m)*4)), nil
}

func (dev *Device) RemovePresetRunLength(m int) error {
	if m < 0 || m >= dev.nmods {
		return fmt.Errorf("gw: invalid module index %d", m)
	}
	return nil
}

func (dev *Device) WriteModuleParam(m int, name string, value uint32) error {
	return fmt.Errorf("gw: module param %q not implemented for module %d=%d", name, m, value)
}

func (dev *Device) ReadModuleParam(m int, name string) (uint32, error) {
	return 0, fmt.Errorf("gw: module param %q not implemented for module %d", name, m)
}

func (dev *Device) WriteChannelParam(m, ch int, name string, value float64) error {
	return fmt.Errorf("gw: channel param %q not implemented for module %d chan %d=%v", name, m, ch, value)
}

func (dev *Device) ReadChannelParam(m, ch int, name string) (float64, error) {
	return 0, fmt.Errorf("gw: channel param %q not implemented for module %d chan %d", name, m, ch)
}

func (dev *Device) SaveDSPParameters(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gw: could not create %q: %w", path, err)
	}
	defer f.Close()

	for m := 0; m < dev.nmods; m++ {
		_, err := fmt.Fprintf(f, "# module %d (slot %d)\n", m, dev.SlotOf(m))
		if err != nil {
			return fmt.Errorf("gw: could not write dsp parameters: %w", err)
		}
	}
	return nil
}

func (dev *Device) Close() error {
	if dev.lw != nil {
		if err := dev.lw.Close(); err != nil {
			return fmt.Errorf("gw: could not unmap registers: %w", err)
		}
	}
	return dev.fd.Close()
}

func (dev *Device) readU32(off int64) uint32 {
	_, err := dev.lw.ReadAt(dev.xbuf[:4], off)
	if err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(dev.xbuf[:4])
}

func (dev *Device) writeU32(off int64, v uint32) {
	binary.LittleEndian.PutUint32(dev.xbuf[:4], v)
	_, _ = dev.lw.WriteAt(dev.xbuf[:4], off)
}
