//go:build !unix

package primitive

import "github.com/pkg/errors"

func mapPages(length int) ([]byte, error) {
	return nil, errors.New("anonymous page mapping is not supported on this platform")
}

func unmapPages(data []byte) error {
	return nil
}
