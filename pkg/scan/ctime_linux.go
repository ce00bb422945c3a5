//go:build linux

package scan

import "syscall"

func ctimeSec(st *syscall.Stat_t) (int64, int64) {
	return st.Ctim.Sec, st.Ctim.Nsec
}
