package probe

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/perf"
)

const powerSupplyDir = "class/power_supply"

// ReadBattery reads the first battery under sysfsRoot.
func ReadBattery(sysfsRoot string) (perf.BatteryStatus, error) {
	errFactory := errors.New()
	base := filepath.Join(sysfsRoot, powerSupplyDir)

	entries, err := os.ReadDir(base)
	if err != nil {
		return perf.BatteryStatus{}, errFactory.Wrap(ErrBatteryNotFound, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(base, name)
		kind, err := readTrimmed(filepath.Join(dir, "type"))
		if err != nil || kind != "Battery" {
			continue
		}

		raw, err := readTrimmed(filepath.Join(dir, "capacity"))
		if err != nil {
			return perf.BatteryStatus{}, errFactory.Wrap(ErrBatteryRead, err)
		}
		level, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return perf.BatteryStatus{}, errFactory.Wrap(ErrBatteryRead, err)
		}

		status, _ := readTrimmed(filepath.Join(dir, "status"))
		charging := status == "Charging" || status == "Full"

		return perf.BatteryStatus{LevelPercent: level, Charging: charging}, nil
	}

	return perf.BatteryStatus{}, errFactory.New(ErrBatteryNotFound)
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
