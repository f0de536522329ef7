package volumewriter

import "github.com/deepteams/volumewriter/internal/errkind"

// The error message catalog below fixes the host-facing string for
// each invalid-use case, classified by the failure's errkind.Kind so a
// caller can tell a programming error (Protocol/Config) from a
// runtime one (IO/Codec).

func errBlockAlreadyCopied() error {
	return errkind.New(errkind.Protocol, "Block data has already been copied")
}

func errInvalidDataSize() error {
	return errkind.New(errkind.Protocol, "Invalid data size")
}

func errDataTypeMismatch() error {
	return errkind.New(errkind.Protocol, "Block data type does not match converter data type")
}

func errNoOverlap() error {
	return errkind.New(errkind.Protocol, "Block data has no overlap with result image")
}

func errAlreadyFinished() error {
	return errkind.New(errkind.Protocol, "Converter has already been finished")
}

func errZeroImageSize() error {
	return errkind.New(errkind.Config, "Image size must be greater than zero in every dimension")
}

func errInvalidChannelCount() error {
	return errkind.New(errkind.Config, "Channel options count does not match image size")
}

func errUnsupportedVoxelType() error {
	return errkind.New(errkind.Config, "Unsupported voxel data type")
}
