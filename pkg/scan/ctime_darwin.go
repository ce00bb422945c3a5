//go:build darwin

package scan

import "syscall"

func ctimeSec(st *syscall.Stat_t) (int64, int64) {
	return st.Ctimespec.Sec, st.Ctimespec.Nsec
}
