package media

import "errors"

var (
	// ErrAssetTooLarge indicates the payload exceeds the platform photo limit
	// even after every reduction step.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrNotAnImage indicates the payload could not be decoded as an image.
	ErrNotAnImage = errors.New("payload is not a decodable image")
)
