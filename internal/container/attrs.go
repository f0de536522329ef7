package container

import (
	"fmt"
	"strconv"
	"strings"
)

// AttributeWriter is the narrow capability every helper below needs:
// just the ability to stamp one string attribute. Backend satisfies it
// structurally, but so does writerpipeline.Pipeline, which only
// implements string-attribute writing itself (not the full Backend
// interface) so it can route attribute writes through its one ordered
// writer goroutine alongside block and histogram jobs.
type AttributeWriter interface {
	WriteAttribute(groupPath, name, value string) error
}

// Root-level attribute values, written once per file.
const (
	AttrImarisDataSetValue = "ImarisDataSet"
	AttrImarisVersionValue = "5.5.0"
)

// WriteRootAttrs stamps the fixed root-level attributes every file
// carries regardless of image content.
func WriteRootAttrs(b AttributeWriter) error {
	root := "/"
	if err := b.WriteAttribute(root, "ImarisDataSet", AttrImarisDataSetValue); err != nil {
		return err
	}
	if err := b.WriteAttribute(root, "ImarisVersion", AttrImarisVersionValue); err != nil {
		return err
	}
	if err := b.WriteAttribute(root, "NumberOfDataSets", "1"); err != nil {
		return err
	}
	if err := b.WriteAttribute(root, "DataSetDirectoryName", "DataSet"); err != nil {
		return err
	}
	if err := b.WriteAttribute(root, "DataSetInfoDirectoryName", "DataSetInfo"); err != nil {
		return err
	}
	if err := b.WriteAttribute(root, "ThumbnailDirectoryName", "Thumbnail"); err != nil {
		return err
	}
	return nil
}

// WriteChannelSizeAttrs stamps the per-channel-group ImageSizeX/Y/Z
// attributes at a resolution level.
func WriteChannelSizeAttrs(b AttributeWriter, level, timepoint, channel uint64, sizeX, sizeY, sizeZ uint64) error {
	group := ChannelGroupPath(level, timepoint, channel)
	if err := b.WriteAttribute(group, "ImageSizeX", strconv.FormatUint(sizeX, 10)); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "ImageSizeY", strconv.FormatUint(sizeY, 10)); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "ImageSizeZ", strconv.FormatUint(sizeZ, 10)); err != nil {
		return err
	}
	return nil
}

// WriteHistogramRangeAttrs stamps the per-channel histogram range
// attributes; the "1024" variants describe the
// high-resolution adaptive histogram when one was written.
func WriteHistogramRangeAttrs(b AttributeWriter, level, timepoint, channel uint64, min, max float32, min1024, max1024 *float32) error {
	group := ChannelGroupPath(level, timepoint, channel)
	if err := b.WriteAttribute(group, "HistogramMin", formatFloat32(min)); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "HistogramMax", formatFloat32(max)); err != nil {
		return err
	}
	if min1024 != nil {
		if err := b.WriteAttribute(group, "HistogramMin1024", formatFloat32(*min1024)); err != nil {
			return err
		}
	}
	if max1024 != nil {
		if err := b.WriteAttribute(group, "HistogramMax1024", formatFloat32(*max1024)); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// imageInfoGroup is the fixed group every Image attribute below is
// stamped on.
const imageInfoGroup = "/DataSetInfo/Image"

// ImageInfoAttrs carries the DataSetInfo/Image group's attributes:
// the full-resolution voxel extent, the physical bounding box, the
// recording date, and the physical unit.
type ImageInfoAttrs struct {
	SizeX, SizeY, SizeZ          uint64
	ExtMin0, ExtMin1, ExtMin2    float32
	ExtMax0, ExtMax1, ExtMax2    float32
	Unit                         string
	RecordingDate                string
	ResampleDimensionX           uint64
	ResampleDimensionY           uint64
	ResampleDimensionZ           uint64
}

// WriteImageInfoAttrs stamps /DataSetInfo/Image.
func WriteImageInfoAttrs(b AttributeWriter, a ImageInfoAttrs) error {
	pairs := []struct{ name, value string }{
		{"X", strconv.FormatUint(a.SizeX, 10)},
		{"Y", strconv.FormatUint(a.SizeY, 10)},
		{"Z", strconv.FormatUint(a.SizeZ, 10)},
		{"ExtMin0", formatFloat32(a.ExtMin0)},
		{"ExtMin1", formatFloat32(a.ExtMin1)},
		{"ExtMin2", formatFloat32(a.ExtMin2)},
		{"ExtMax0", formatFloat32(a.ExtMax0)},
		{"ExtMax1", formatFloat32(a.ExtMax1)},
		{"ExtMax2", formatFloat32(a.ExtMax2)},
		{"Unit", a.Unit},
		{"RecordingDate", a.RecordingDate},
		{"ResampleDimensionX", strconv.FormatUint(a.ResampleDimensionX, 10)},
		{"ResampleDimensionY", strconv.FormatUint(a.ResampleDimensionY, 10)},
		{"ResampleDimensionZ", strconv.FormatUint(a.ResampleDimensionZ, 10)},
	}
	for _, p := range pairs {
		if err := b.WriteAttribute(imageInfoGroup, p.name, p.value); err != nil {
			return err
		}
	}
	return nil
}

// WriteTimeInfoAttrs stamps /DataSetInfo/TimeInfo: the timepoint count
// and each TimePoint{i+1} calendar string.
func WriteTimeInfoAttrs(b AttributeWriter, fileTimePoints, datasetTimePoints uint64, timePoints []string) error {
	group := "/DataSetInfo/TimeInfo"
	if err := b.WriteAttribute(group, "FileTimePoints", strconv.FormatUint(fileTimePoints, 10)); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "DataSetTimePoints", strconv.FormatUint(datasetTimePoints, 10)); err != nil {
		return err
	}
	for i, tp := range timePoints {
		name := fmt.Sprintf("TimePoint%d", i+1)
		if err := b.WriteAttribute(group, name, tp); err != nil {
			return err
		}
	}
	return nil
}

// ChannelInfoAttrs carries one DataSetInfo/Channel i group's
// attributes: its name, description, and display color.
type ChannelInfoAttrs struct {
	Name            string
	Description     string
	BaseColorMode   bool
	Color           [3]float32 // used when BaseColorMode
	ColorTable      [][3]float32
	ColorOpacity    float32
	ColorRangeMin   float32
	ColorRangeMax   float32
	GammaCorrection float32
}

// WriteChannelInfoAttrs stamps one "/DataSetInfo/Channel i" group
//.
func WriteChannelInfoAttrs(b AttributeWriter, channel uint64, a ChannelInfoAttrs) error {
	group := fmt.Sprintf("/DataSetInfo/Channel %d", channel)
	if err := b.WriteAttribute(group, "Name", a.Name); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "Description", a.Description); err != nil {
		return err
	}
	if a.BaseColorMode {
		if err := b.WriteAttribute(group, "ColorMode", "BaseColor"); err != nil {
			return err
		}
		if err := b.WriteAttribute(group, "Color", encodeColor(a.Color)); err != nil {
			return err
		}
	} else {
		if err := b.WriteAttribute(group, "ColorMode", "TableColor"); err != nil {
			return err
		}
		if err := b.WriteAttribute(group, "ColorTable", encodeColorTable(a.ColorTable)); err != nil {
			return err
		}
		if err := b.WriteAttribute(group, "ColorTableLength", strconv.Itoa(len(a.ColorTable))); err != nil {
			return err
		}
	}
	if err := b.WriteAttribute(group, "ColorOpacity", formatFloat32(a.ColorOpacity)); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "ColorRange", fmt.Sprintf("%s %s", formatFloat32(a.ColorRangeMin), formatFloat32(a.ColorRangeMax))); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "GammaCorrection", formatFloat32(a.GammaCorrection)); err != nil {
		return err
	}
	return nil
}

func encodeColor(c [3]float32) string {
	return fmt.Sprintf("%s %s %s", formatFloat32(c[0]), formatFloat32(c[1]), formatFloat32(c[2]))
}

// encodeColorTable flattens a color table into the space-separated
// triplet-list encoding WriteAttribute's string-valued attributes use
// throughout this file.
func encodeColorTable(table [][3]float32) string {
	parts := make([]string, len(table))
	for i, c := range table {
		parts[i] = encodeColor(c)
	}
	return strings.Join(parts, " ")
}

// WriteImarisDataSetInfoAttrs stamps /DataSetInfo/ImarisDataSet, the
// fixed creator/version/image-count block every file carries.
func WriteImarisDataSetInfoAttrs(b AttributeWriter, numberOfImages uint64) error {
	group := "/DataSetInfo/ImarisDataSet"
	if err := b.WriteAttribute(group, "NumberOfImages", strconv.FormatUint(numberOfImages, 10)); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "Creator", "volumewriter"); err != nil {
		return err
	}
	if err := b.WriteAttribute(group, "Version", AttrImarisVersionValue); err != nil {
		return err
	}
	return nil
}
