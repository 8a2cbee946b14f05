package probe

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/nexustouch/perfd/internal/errors"
)

const kibPerGiB = 1024 * 1024

// meminfo holds the /proc/meminfo fields the probes need, in KiB.
type meminfo struct {
	total     uint64
	available uint64
}

func readMeminfo(procRoot string) (meminfo, error) {
	errFactory := errors.New()
	path := filepath.Join(procRoot, "meminfo")

	f, err := os.Open(path)
	if err != nil {
		return meminfo{}, errFactory.Wrap(ErrMeminfoRead, err)
	}
	defer f.Close()

	var info meminfo
	var haveTotal, haveAvail bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		value, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "MemTotal":
			info.total, haveTotal = value, true
		case "MemAvailable":
			info.available, haveAvail = value, true
		}
	}
	if err := scanner.Err(); err != nil {
		return meminfo{}, errFactory.Wrap(ErrMeminfoRead, err)
	}
	if !haveTotal || info.total == 0 {
		return meminfo{}, errFactory.WithData(ErrMeminfoField, "MemTotal")
	}
	if !haveAvail {
		return meminfo{}, errFactory.WithData(ErrMeminfoField, "MemAvailable")
	}

	return info, nil
}

func (m meminfo) usagePercent() float64 {
	if m.available >= m.total {
		return 0
	}
	return float64(m.total-m.available) / float64(m.total) * 100
}

func (m meminfo) totalGiB() float64 {
	return float64(m.total) / kibPerGiB
}
