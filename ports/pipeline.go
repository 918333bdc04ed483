package ports

import (
	"context"
)

// DatasetSource makes a raw dataset available on local disk and returns the
// path of its primary table.
type DatasetSource interface {
	Acquire(ctx context.Context, url, destinationDir string) (string, error)
}
