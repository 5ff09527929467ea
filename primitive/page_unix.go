//go:build unix

package primitive

import "golang.org/x/sys/unix"

func mapPages(length int) ([]byte, error) {
	return unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapPages(data []byte) error {
	return unix.Munmap(data)
}
