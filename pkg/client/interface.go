package client

import (
	"context"

	"github.com/osanchezv/focalcrop/pkg/types"
)

// VisionClient is implemented by vision-model backends that can locate
// prompted object classes in an image. DetectObjects returns boxes in
// normalized coordinates; SimpleQuery is a free-form probe used to verify
// that a backend actually sees the image.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectObjects(ctx context.Context, model, prompt, imgB64 string) ([]types.ModelDetection, error)
}
