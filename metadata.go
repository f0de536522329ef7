package volumewriter

import (
	"github.com/deepteams/volumewriter/internal/caltime"
	"github.com/deepteams/volumewriter/internal/colorrange"
	"github.com/deepteams/volumewriter/internal/container"
)

// writeMetadata stamps every dataset and file attribute and, if
// configured, builds and writes the thumbnail. It runs once, from
// Finish, after every channel's histogram has been folded into the
// engine's in-memory builders but before the writer pipeline is
// drained and closed - every write here goes through
// c.pipeline.WriteAttribute/WriteThumbnail so it lands on the same
// single ordered writer goroutine as every block and histogram job.
func (c *converterT[T]) writeMetadata() error {
	if err := container.WriteRootAttrs(c.pipeline); err != nil {
		return err
	}
	if err := container.WriteImarisDataSetInfoAttrs(c.pipeline, 1); err != nil {
		return err
	}

	if err := c.writeImageAndTimeAttrs(); err != nil {
		return err
	}

	rangesPerChannel := make([]ColorInfo, c.opts.ImageSize.C)
	for ch := uint64(0); ch < c.opts.ImageSize.C; ch++ {
		color, err := c.writeChannelAttrs(ch)
		if err != nil {
			return err
		}
		rangesPerChannel[ch] = color
	}

	if c.thumb != nil {
		thumb := c.thumb.Build(rangesPerChannel, c.opts.Extent.MaxX-c.opts.Extent.MinX, c.opts.Extent.MaxY-c.opts.Extent.MinY)
		if err := c.pipeline.WriteThumbnail(thumb.Width, thumb.Height, thumb.RGBA); err != nil {
			return err
		}
	}
	return nil
}

func (c *converterT[T]) writeImageAndTimeAttrs() error {
	recordingDate := caltime.Format(c.opts.RecordingDate)
	err := container.WriteImageInfoAttrs(c.pipeline, container.ImageInfoAttrs{
		SizeX: c.storedSize.X, SizeY: c.storedSize.Y, SizeZ: c.storedSize.Z,
		ExtMin0: c.opts.Extent.MinX, ExtMin1: c.opts.Extent.MinY, ExtMin2: c.opts.Extent.MinZ,
		ExtMax0: c.opts.Extent.MaxX, ExtMax1: c.opts.Extent.MaxY, ExtMax2: c.opts.Extent.MaxZ,
		Unit:               c.opts.Unit,
		RecordingDate:      recordingDate,
		ResampleDimensionX: c.sampleXY[0],
		ResampleDimensionY: c.sampleXY[1],
		ResampleDimensionZ: 1,
	})
	if err != nil {
		return err
	}

	timePoints := make([]string, c.opts.ImageSize.T)
	for t := range timePoints {
		if uint64(t) < uint64(len(c.opts.TimePoints)) {
			timePoints[t] = caltime.Format(c.opts.TimePoints[t])
		} else {
			timePoints[t] = recordingDate
		}
	}
	return container.WriteTimeInfoAttrs(c.pipeline, c.opts.ImageSize.T, c.opts.ImageSize.T, timePoints)
}

// writeChannelAttrs stamps one channel's size/histogram-range
// attributes at every resolution level plus its DataSetInfo/Channel
// group, and returns the ColorInfo the thumbnail builder should use
// for it (auto-derived range if requested, else the configured one).
func (c *converterT[T]) writeChannelAttrs(ch uint64) (ColorInfo, error) {
	opt := c.opts.Channels[ch]

	rangeMin, rangeMax := opt.RangeMin, opt.RangeMax
	if c.opts.AutoAdjustColorRange {
		h := c.engine.ChannelHistogram(ch)
		rangeMin, rangeMax = colorrange.AutoRange(h)
	}

	for level := range c.levels {
		for t := uint64(0); t < c.opts.ImageSize.T; t++ {
			h := c.engine.LevelHistogram(uint64(level), t, ch, 256)
			min32, max32 := float32(h.Min), float32(h.Max)
			if err := container.WriteChannelSizeAttrs(c.pipeline, uint64(level), t, ch, c.levels[level].X, c.levels[level].Y, c.levels[level].Z); err != nil {
				return ColorInfo{}, err
			}
			// The 1024-bin range attributes accompany the finer
			// Histogram1024 dataset, which only exists when the source
			// histogram had more than 256 distinct bins.
			var min1024, max1024 *float32
			if h1024 := c.engine.LevelHistogram(uint64(level), t, ch, 1024); len(h1024.Bins) > 256 {
				lo, hi := float32(h1024.Min), float32(h1024.Max)
				min1024, max1024 = &lo, &hi
			}
			if err := container.WriteHistogramRangeAttrs(c.pipeline, uint64(level), t, ch, min32, max32, min1024, max1024); err != nil {
				return ColorInfo{}, err
			}
		}
	}

	color := opt.Color
	color.RangeMin, color.RangeMax = rangeMin, rangeMax

	var colorTable [][3]float32
	for _, e := range color.ColorTable {
		colorTable = append(colorTable, [3]float32{e.R, e.G, e.B})
	}

	err := container.WriteChannelInfoAttrs(c.pipeline, ch, container.ChannelInfoAttrs{
		Name:            opt.Name,
		Description:     opt.Description,
		BaseColorMode:   color.BaseColorMode,
		Color:           [3]float32{color.BaseColor.R, color.BaseColor.G, color.BaseColor.B},
		ColorTable:      colorTable,
		ColorOpacity:    color.Opacity,
		ColorRangeMin:   rangeMin,
		ColorRangeMax:   rangeMax,
		GammaCorrection: opt.GammaCorrection,
	})
	return color, err
}
