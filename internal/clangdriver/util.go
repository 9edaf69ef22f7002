package clangdriver

import (
	"os"
	"runtime"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func concurrencyLimit() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
