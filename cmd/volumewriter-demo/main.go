// Command volumewriter-demo writes a synthetic 5D volume to a
// converter file, driving the full Open/CopyBlock/Finish life cycle
// against generated voxel data rather than a real acquisition.
//
// Usage:
//
//	volumewriter-demo [options] <output>
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"

	vw "github.com/deepteams/volumewriter"
	"github.com/deepteams/volumewriter/internal/colormodel"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "volumewriter-demo: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("volumewriter-demo", flag.ContinueOnError)
	sizeX := fs.Uint64("x", 512, "image size along X")
	sizeY := fs.Uint64("y", 512, "image size along Y")
	sizeZ := fs.Uint64("z", 64, "image size along Z")
	sizeC := fs.Uint64("c", 2, "channel count")
	sizeT := fs.Uint64("t", 1, "timepoint count")
	blockXY := fs.Uint64("block", 256, "copy block size along X and Y")
	thumbXY := fs.Uint64("thumb", 256, "thumbnail size (0 disables)")
	autoRange := fs.Bool("autorange", true, "derive each channel's display range from its histogram")
	compression := fs.String("compress", "shuffle-lz4", "none/gzip/shuffle-gzip/lz4/shuffle-lz4")
	verbose := fs.Bool("v", false, "log progress to stderr")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("missing output file\nUsage: volumewriter-demo [options] <output>")
	}
	outputPath := fs.Arg(0)

	kind, err := parseCompression(*compression)
	if err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	}

	channels := make([]vw.ChannelOptions, *sizeC)
	for i := range channels {
		channels[i] = vw.ChannelOptions{
			Name:  fmt.Sprintf("Channel %d", i),
			Color: demoColor(i),
			RangeMin:        0,
			RangeMax:        255,
			GammaCorrection: 1,
		}
	}

	w, err := vw.Open(vw.Options{
		DataType:        vw.U8,
		Output:          out,
		ImageSize:       vw.Size5D{X: *sizeX, Y: *sizeY, Z: *sizeZ, C: *sizeC, T: *sizeT},
		Extent:          vw.ImageExtent{MaxX: float32(*sizeX), MaxY: float32(*sizeY), MaxZ: float32(*sizeZ)},
		CopyBlockSizeXY: [2]uint64{*blockXY, *blockXY},
		Compression:     vw.CompressionOptions{Kind: kind, DeflateLevel: 6},
		ThumbnailSizeXY: *thumbXY,
		Channels:            channels,
		AutoAdjustColorRange: *autoRange,
		Unit:                 "um",
		Progress: func(fraction float64, bytesWritten uint64) {
			if *verbose {
				fmt.Fprintf(os.Stderr, "progress: %.1f%% (%d bytes)\n", fraction*100, bytesWritten)
			}
		},
		Logger: logger,
	})
	if err != nil {
		out.Close()
		os.Remove(outputPath)
		return fmt.Errorf("opening converter: %w", err)
	}

	if err := writeSyntheticVolume(w, *sizeX, *sizeY, *sizeZ, *sizeC, *sizeT, *blockXY); err != nil {
		return fmt.Errorf("writing blocks: %w", err)
	}

	if err := w.Finish(); err != nil {
		return fmt.Errorf("finishing: %w", err)
	}

	fi, _ := os.Stat(outputPath)
	fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", outputPath, fi.Size())
	return nil
}

// writeSyntheticVolume feeds one 8-bit copy block at a time, each
// filled with a sphere-distance gradient so the auto color range and
// thumbnail have something non-trivial to work with.
func writeSyntheticVolume(writer vw.Writer, sizeX, sizeY, sizeZ, sizeC, sizeT, blockXY uint64) error {
	nBlocksX := divCeil(sizeX, blockXY)
	nBlocksY := divCeil(sizeY, blockXY)
	cx, cy, cz := float64(sizeX)/2, float64(sizeY)/2, float64(sizeZ)/2
	radius := math.Min(cx, math.Min(cy, cz))

	for t := uint64(0); t < sizeT; t++ {
		for c := uint64(0); c < sizeC; c++ {
			for z := uint64(0); z < sizeZ; z++ {
				for by := uint64(0); by < nBlocksY; by++ {
					for bx := uint64(0); bx < nBlocksX; bx++ {
						idx := vw.Index5D{BlockX: bx, BlockY: by, BlockZ: z, Channel: c, Time: t}
						w, h := blockShape(bx, by, sizeX, sizeY, blockXY)
						data := make([]uint8, w*h)
						for ly := uint64(0); ly < h; ly++ {
							y := by*blockXY + ly
							for lx := uint64(0); lx < w; lx++ {
								x := bx*blockXY + lx
								d := math.Sqrt((float64(x)-cx)*(float64(x)-cx) + (float64(y)-cy)*(float64(y)-cy) + (float64(z)-cz)*(float64(z)-cz))
								v := 255 * (1 - d/radius)
								if v < 0 {
									v = 0
								}
								if c == 1 {
									v = 255 - v
								}
								data[ly*w+lx] = uint8(v)
							}
						}
						if err := writer.CopyBlock(data, idx); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

func blockShape(bx, by, sizeX, sizeY, blockXY uint64) (w, h uint64) {
	w = blockXY
	if bx*blockXY+w > sizeX {
		w = sizeX - bx*blockXY
	}
	h = blockXY
	if by*blockXY+h > sizeY {
		h = sizeY - by*blockXY
	}
	return w, h
}

func divCeil(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func demoColor(channel int) vw.ColorInfo {
	palette := []colormodel.Color{
		{R: 1, G: 0, B: 0, A: 1},
		{R: 0, G: 1, B: 0, A: 1},
		{R: 0, G: 0, B: 1, A: 1},
	}
	return vw.ColorInfo{
		BaseColorMode: true,
		BaseColor:     palette[channel%len(palette)],
		Opacity:       1,
	}
}

func parseCompression(s string) (vw.CompressionKind, error) {
	switch s {
	case "none":
		return vw.CompressionNone, nil
	case "gzip":
		return vw.CompressionGzip6, nil
	case "shuffle-gzip":
		return vw.CompressionShuffleGzip6, nil
	case "lz4":
		return vw.CompressionLZ4, nil
	case "shuffle-lz4":
		return vw.CompressionShuffleLZ4, nil
	default:
		return 0, fmt.Errorf("unknown -compress value %q", s)
	}
}
