//go:build !unix

package icmp

import (
	"fmt"
	"runtime"
)

func openRawSocket(family Family) (Transport, error) {
	return nil, fmt.Errorf("raw %s ICMP sockets are not supported on %s", family, runtime.GOOS)
}
