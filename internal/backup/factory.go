package backup

import (
	"context"
	"fmt"
	"os"
)

// OpenTarget selects a backup target using environment variables.
//
//	LABSTOCK_BACKUP_DRIVER: fs|s3|memory (default fs)
//	LABSTOCK_BACKUP_FS_ROOT: directory root when driver=fs (default ./backups)
//	(S3 specific variables documented in s3.go)
func OpenTarget(ctx context.Context) (Target, error) {
	driver := os.Getenv("LABSTOCK_BACKUP_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("LABSTOCK_BACKUP_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backup driver %s", driver)
	}
}
