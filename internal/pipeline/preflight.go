package pipeline

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"

	cErrors "github.com/mantonx/ffcrop/internal/errors"
)

// FreeSpaceFunc reports free bytes on the volume holding dir
type FreeSpaceFunc func(dir string) (uint64, error)

// DiskFree reads free space with gopsutil
func DiskFree(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// checkFreeSpace fails when the output volume has less free space than the
// input's size scaled by ratio. A ratio of zero disables the check.
func checkFreeSpace(freeSpace FreeSpaceFunc, input, output string, ratio float64) error {
	if ratio <= 0 || freeSpace == nil {
		return nil
	}

	info, err := os.Stat(input)
	if err != nil {
		return cErrors.New(cErrors.ErrorTypeResource, "preflight", err).WithInput(input)
	}

	dir := filepath.Dir(output)
	free, err := freeSpace(dir)
	if err != nil {
		return cErrors.New(cErrors.ErrorTypeResource, "preflight", err).WithDetail("dir", dir)
	}

	required := uint64(float64(info.Size()) * ratio)
	if free < required {
		return cErrors.Newf(cErrors.ErrorTypeResource, "preflight", cErrors.ErrInsufficientSpace,
			"%s has %d bytes free, need %d", dir, free, required).
			WithInput(input).
			WithDetail("free", free).
			WithDetail("required", required)
	}
	return nil
}
