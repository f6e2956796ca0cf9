// Command rawtone decodes RAW files and runs the tone pipeline without a
// window.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"photocrispy/internal/config"
	"photocrispy/internal/debug"
	"photocrispy/internal/export"
	"photocrispy/internal/gpu"
	"photocrispy/internal/gpu/opengl"
	"photocrispy/internal/gpu/software"
	"photocrispy/internal/histogram"
	"photocrispy/internal/pipeline"
	"photocrispy/internal/raw"
	"photocrispy/internal/raw/libraw"
	"photocrispy/internal/raw/opencv"
	"photocrispy/internal/tone"
)

// OpenGL calls must stay on the thread that created the context.
func init() {
	runtime.LockOSThread()
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "info":
		err = runInfo(cfg, args, os.Stdout)
	case "histogram":
		err = runHistogram(cfg, args, os.Stdout)
	case "render":
		err = runRender(cfg, args, os.Stdout)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fail(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `rawtone <command> [flags]

Commands:
  info       print dimensions and camera metadata
  histogram  compute the CPU histogram of the decoded image
  render     apply tone adjustments on a device and export the result
`)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func decoderFlag(fs *flag.FlagSet) *string {
	return fs.String("decoder", "auto", "decoder chain: auto, libraw, opencv or imaging")
}

func decoders(name string) ([]raw.Decoder, error) {
	switch strings.ToLower(name) {
	case "auto", "":
		return []raw.Decoder{libraw.Decoder{}, opencv.Decoder{}, raw.ImagingDecoder{}}, nil
	case "libraw":
		return []raw.Decoder{libraw.Decoder{}}, nil
	case "opencv":
		return []raw.Decoder{opencv.Decoder{}}, nil
	case "imaging":
		return []raw.Decoder{raw.ImagingDecoder{}}, nil
	default:
		return nil, fmt.Errorf("unknown decoder %q", name)
	}
}

func decode(logger debug.Logger, decoder, path string) (raw.DecodedImage, error) {
	chain, err := decoders(decoder)
	if err != nil {
		return raw.DecodedImage{}, err
	}
	img := raw.NewService(logger, chain...).Decode(context.Background(), path)
	if !img.Success {
		return img, fmt.Errorf("decode %s: %w", path, img.Err)
	}
	return img, nil
}

type imageInfo struct {
	Path           string `json:"path"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Channels       int    `json:"channels"`
	BitsPerChannel int    `json:"bits_per_channel"`
	CameraMake     string `json:"camera_make,omitempty"`
	CameraModel    string `json:"camera_model,omitempty"`
	LensModel      string `json:"lens_model,omitempty"`
}

func runInfo(cfg config.Config, args []string, out io.Writer) error {
	fs := newFlagSet("info")
	in := fs.String("in", "", "input image path")
	decoder := decoderFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return errors.New("missing required arguments")
	}

	dc := debug.NewCoordinator(cfg.Debug())
	defer dc.Shutdown()

	img, err := decode(dc.Logger(), *decoder, *in)
	if err != nil {
		return err
	}
	return writeJSON(out, imageInfo{
		Path:           img.Path,
		Width:          img.Width,
		Height:         img.Height,
		Channels:       img.Channels,
		BitsPerChannel: img.BitsPerChannel,
		CameraMake:     img.CameraMake,
		CameraModel:    img.CameraModel,
		LensModel:      img.LensModel,
	})
}

type histogramReport struct {
	Source    string   `json:"source"`
	Bins      int      `json:"bins"`
	Red       []uint32 `json:"red"`
	Green     []uint32 `json:"green"`
	Blue      []uint32 `json:"blue"`
	Luminance []uint32 `json:"luminance"`
}

func newHistogramReport(source string, c histogram.Counts) histogramReport {
	return histogramReport{
		Source:    source,
		Bins:      len(c.Red),
		Red:       c.Red,
		Green:     c.Green,
		Blue:      c.Blue,
		Luminance: c.Luminance,
	}
}

func runHistogram(cfg config.Config, args []string, out io.Writer) error {
	fs := newFlagSet("histogram")
	in := fs.String("in", "", "input image path")
	decoder := decoderFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return errors.New("missing required arguments")
	}

	dc := debug.NewCoordinator(cfg.Debug())
	defer dc.Shutdown()

	img, err := decode(dc.Logger(), *decoder, *in)
	if err != nil {
		return err
	}
	counts, err := histogram.ComputeCounts(img)
	if err != nil {
		return err
	}
	return writeJSON(out, newHistogramReport("cpu", counts))
}

type toneFlags struct {
	exposure, contrast, highlights, shadows, saturation float64
	shadowLow, shadowHigh, highlightLow, highlightHigh  float64
}

func (t *toneFlags) register(fs *flag.FlagSet) {
	d := tone.Defaults()
	fs.Float64Var(&t.exposure, "exposure", float64(d.Exposure()), "exposure in stops")
	fs.Float64Var(&t.contrast, "contrast", float64(d.Contrast()), "contrast amount")
	fs.Float64Var(&t.highlights, "highlights", float64(d.Highlights()), "highlights amount")
	fs.Float64Var(&t.shadows, "shadows", float64(d.Shadows()), "shadows amount")
	fs.Float64Var(&t.saturation, "saturation", float64(d.Saturation()), "saturation amount")
	fs.Float64Var(&t.shadowLow, "shadow-low", float64(d.ShadowLow()), "shadow falloff start")
	fs.Float64Var(&t.shadowHigh, "shadow-high", float64(d.ShadowHigh()), "shadow falloff end")
	fs.Float64Var(&t.highlightLow, "highlight-low", float64(d.HighlightLow()), "highlight falloff start")
	fs.Float64Var(&t.highlightHigh, "highlight-high", float64(d.HighlightHigh()), "highlight falloff end")
}

func (t toneFlags) parameters() tone.Parameters {
	p := tone.Defaults()
	p.SetExposure(float32(t.exposure))
	p.SetContrast(float32(t.contrast))
	p.SetHighlights(float32(t.highlights))
	p.SetShadows(float32(t.shadows))
	p.SetSaturation(float32(t.saturation))
	p.SetShadowLow(float32(t.shadowLow))
	p.SetShadowHigh(float32(t.shadowHigh))
	p.SetHighlightLow(float32(t.highlightLow))
	p.SetHighlightHigh(float32(t.highlightHigh))
	return p
}

func openDevice(backend config.Backend) (gpu.Device, error) {
	switch backend {
	case config.BackendSoftware:
		return software.New(), nil
	case config.BackendOpenGL:
		d, err := opengl.New()
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func runRender(cfg config.Config, args []string, out io.Writer) error {
	fs := newFlagSet("render")
	in := fs.String("in", "", "input image path")
	outPath := fs.String("out", "", "output image path (.png, .tif, .jpg)")
	histOut := fs.String("hist-out", "", "write the device histogram as JSON to this path, - for stdout")
	backendName := fs.String("backend", string(cfg.Backend), "device backend: software or opengl")
	deep := fs.Bool("deep", true, "keep 16 bits per channel when the format allows it")
	decoder := decoderFlag(fs)
	var tf toneFlags
	tf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || (*outPath == "" && *histOut == "") {
		fs.Usage()
		return errors.New("missing required arguments")
	}
	if *outPath != "" {
		if _, err := export.FormatFor(*outPath); err != nil {
			return err
		}
	}
	backend, err := config.ParseBackend(*backendName)
	if err != nil {
		return err
	}

	dc := debug.NewCoordinator(cfg.Debug())
	defer dc.Shutdown()
	logger := dc.Logger()

	img, err := decode(logger, *decoder, *in)
	if err != nil {
		return err
	}

	device, err := openDevice(backend)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			logger.Error("rawtone", err, map[string]interface{}{"backend": device.Name()})
		}
	}()

	p := pipeline.New(device, logger,
		pipeline.WithResources(dc.Resources()),
		pipeline.WithTiming(dc.Timing()),
		pipeline.WithGPUHistogram(*histOut != ""),
	)
	if err := p.Init(); err != nil {
		return err
	}
	defer p.Teardown()

	if err := p.LoadImage(img); err != nil {
		return err
	}
	p.SetParameters(tf.parameters())

	snap, err := p.Snapshot()
	if err != nil {
		return err
	}

	if *histOut != "" {
		if err := writeDeviceHistogram(p, *histOut, out); err != nil {
			return err
		}
	}

	if *outPath != "" {
		saver := export.NewSaver(logger,
			export.WithTiming(dc.Timing()),
			export.WithDeepWriter(opencv.Write16),
		)
		if err := saver.SaveFile(*outPath, snap, *deep && export.KeepsDepth(*outPath)); err != nil {
			return err
		}
		logger.Info("rawtone", "rendered image written", map[string]interface{}{
			"path":    *outPath,
			"backend": device.Name(),
			"width":   snap.Bounds().Dx(),
			"height":  snap.Bounds().Dy(),
		})
	}
	return nil
}

func writeDeviceHistogram(p *pipeline.Pipeline, path string, stdout io.Writer) error {
	if err := p.ComputeHistogram(); err != nil {
		return err
	}
	if err := p.ReadHistogramData(); err != nil {
		return err
	}
	counts, err := histogram.SplitReadback(p.HistogramData(), p.BinCount())
	if err != nil {
		return err
	}
	report := newHistogramReport("device", counts)

	if path == "-" {
		return writeJSON(stdout, report)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
