package keyValStore

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// checkDiskSpace verifies every data path has at least minimumFreeGB of free
// space and logs the usage of each mount.
func checkDiskSpace(log *logrus.Logger, paths []string, minimumFreeGB int) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error retrieving disk usage stats: %v", err)
			return err
		}

		totalGB := float64(usage.Total) / 1e9
		freeGB := float64(usage.Free) / 1e9

		log.WithFields(logrus.Fields{
			"Path":       path,
			"Total (GB)": fmt.Sprintf("%.2f", totalGB),
			"Free (GB)":  fmt.Sprintf("%.2f", freeGB),
			"Used %":     fmt.Sprintf("%.1f", usage.UsedPercent),
		}).Info("Disk Usage")

		if minimumFreeGB > 0 && freeGB < float64(minimumFreeGB) {
			return fmt.Errorf("not enough free space on %s: %.2f GB free, %d GB required",
				path, freeGB, minimumFreeGB)
		}
	}

	return nil
}
