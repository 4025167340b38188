//go:build !gocv

package capture

import (
	"context"
	"fmt"
)

func OpenGoCV(_ context.Context, cfg DeviceConfig) (Device, error) {
	return nil, fmt.Errorf("%w: camera %d: built without gocv; rebuild with -tags gocv or set CAMERA_SOURCE=synthetic", ErrDeviceUnavailable, cfg.Index)
}
