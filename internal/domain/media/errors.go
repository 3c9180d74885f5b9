package media

import "errors"

var ErrBadThumbnailType = errors.New("thumbnail type must be image or video")
