package presence

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

type windowsIdleProvider struct{}

func newIdleProvider() IdleProvider {
	return windowsIdleProvider{}
}

func (windowsIdleProvider) IdleDuration() (time.Duration, error) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}

	user32 := syscall.NewLazyDLL("user32.dll")
	getLastInputInfo := user32.NewProc("GetLastInputInfo")
	if r, _, err := getLastInputInfo.Call(uintptr(unsafe.Pointer(&info))); r == 0 {
		return 0, fmt.Errorf("get last input info: %w", err)
	}

	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	ticks, _, _ := kernel32.NewProc("GetTickCount").Call()
	idle := uint32(ticks) - info.dwTime
	return time.Duration(idle) * time.Millisecond, nil
}
